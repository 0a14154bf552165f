// Package accessmgr owns the key material of the system: per-folder signing
// keypairs and symmetric roots, per-publish session keys, and the access
// cryptography of shares. Key material is stored encrypted at rest; the
// at-rest key lives outside the database in a mode-0600 file.
package accessmgr

import (
	"crypto/hmac"
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const (
	logFile     = "accessmgr.log"
	keyFile     = "atrest.key"
	keyMetadata = "UsenetSync At-Rest Key"
	keyVersion  = "1.0.0"
)

// Domain separation prefixes for the commitment derivations.
const (
	verificationPrefix = "v"
	wrapPrefix         = "k"
)

// publicDerivationPrefix is the public constant derivation of public
// shares. The wrapping key is derivable by anyone holding the share id, so
// the wrapped key is effectively published in the clear; it exists to keep
// the envelope shape uniform across access classes.
const publicDerivationPrefix = "usenetsync-public-v1"

// atRestKey is the JSON shape of the at-rest key file.
type atRestKey struct {
	Key []byte `json:"key"`
}

// AccessManager implements modules.AccessManager.
type AccessManager struct {
	store modules.Store
	log   *persist.Logger

	// atRest encrypts folder key material before it enters the store.
	atRest crypto.SessionKey
}

// New creates an access manager, generating the at-rest key on first run.
func New(store modules.Store, persistDir string) (*AccessManager, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, err
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}

	am := &AccessManager{
		store: store,
		log:   logger,
	}
	meta := persist.Metadata{Header: keyMetadata, Version: keyVersion}
	keyPath := filepath.Join(persistDir, keyFile)
	var onDisk atRestKey
	err = persist.LoadJSON(meta, &onDisk, keyPath)
	if os.IsNotExist(err) {
		am.atRest = crypto.GenerateSessionKey()
		onDisk.Key = am.atRest[:]
		if err := persist.SaveJSON(meta, onDisk, keyPath); err != nil {
			return nil, errors.AddContext(err, "unable to save the at-rest key")
		}
		if err := os.Chmod(keyPath, 0600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, errors.AddContext(err, "unable to load the at-rest key")
	} else {
		if len(onDisk.Key) != crypto.KeySize {
			return nil, errors.New("at-rest key has the wrong length")
		}
		copy(am.atRest[:], onDisk.Key)
	}
	return am, nil
}

// Close releases the manager's logger.
func (am *AccessManager) Close() error {
	return am.log.Close()
}

// CreateFolderKeys generates a signing keypair and symmetric root for a new
// folder and persists them encrypted at rest.
func (am *AccessManager) CreateFolderKeys(folder types.FolderID) (modules.FolderKeys, error) {
	sk, pk := crypto.GenerateKeyPair()
	root := crypto.GenerateSessionKey()
	keys := modules.FolderKeys{
		SigningKey: sk,
		PublicKey:  pk,
		Root:       root,
	}
	encrypted := modules.EncryptedFolderKeys{
		SigningKey: am.atRest.EncryptBytes(sk[:], folder[:]),
		Root:       am.atRest.EncryptBytes(root[:], folder[:]),
	}
	if err := am.store.SaveFolderKeys(folder, encrypted); err != nil {
		return modules.FolderKeys{}, err
	}
	am.log.Printf("created key material for folder %v", folder)
	return keys, nil
}

// FolderKeys loads and decrypts a folder's key material.
func (am *AccessManager) FolderKeys(folder types.FolderID) (modules.FolderKeys, error) {
	encrypted, err := am.store.FolderKeys(folder)
	if err != nil {
		return modules.FolderKeys{}, err
	}
	skBytes, err := am.atRest.DecryptBytes(encrypted.SigningKey, folder[:])
	if err != nil {
		return modules.FolderKeys{}, errors.Extend(err, modules.ErrIntegrity)
	}
	rootBytes, err := am.atRest.DecryptBytes(encrypted.Root, folder[:])
	if err != nil {
		return modules.FolderKeys{}, errors.Extend(err, modules.ErrIntegrity)
	}
	var keys modules.FolderKeys
	copy(keys.SigningKey[:], skBytes)
	copy(keys.Root[:], rootBytes)
	keys.PublicKey = keys.SigningKey.PublicKey()
	return keys, nil
}

// AssignSessionKey draws a fresh session key for a publish and persists it
// on the share row, wrapped under the folder root.
func (am *AccessManager) AssignSessionKey(share types.ShareID, folder types.FolderID) (crypto.SessionKey, error) {
	keys, err := am.FolderKeys(folder)
	if err != nil {
		return crypto.SessionKey{}, err
	}
	session := crypto.GenerateSessionKey()
	if err := am.store.SetShareSessionKey(share, crypto.WrapKey(session, keys.Root)); err != nil {
		return crypto.SessionKey{}, err
	}
	return session, nil
}

// SessionKeyForShare recovers a share's session key from the store.
func (am *AccessManager) SessionKeyForShare(share types.ShareID) (crypto.SessionKey, error) {
	row, err := am.store.Share(share)
	if err != nil {
		return crypto.SessionKey{}, err
	}
	keys, err := am.FolderKeys(row.FolderID)
	if err != nil {
		return crypto.SessionKey{}, err
	}
	wrapped, err := am.store.ShareSessionKey(share)
	if err != nil {
		return crypto.SessionKey{}, err
	}
	session, err := crypto.UnwrapKey(wrapped, keys.Root)
	if err != nil {
		return crypto.SessionKey{}, errors.Extend(err, modules.ErrIntegrity)
	}
	return session, nil
}

// contentDerivationPrefix separates the folder content key from the
// commitment derivations of the same root.
const contentDerivationPrefix = "content-v1"

// ContentKey derives the folder's segment encryption key from the folder
// root. The derivation is deterministic, so every publish of the folder
// encrypts segments under the same key and shares can reference segments
// posted for earlier snapshots.
func (am *AccessManager) ContentKey(folder types.FolderID) (crypto.SessionKey, error) {
	keys, err := am.FolderKeys(folder)
	if err != nil {
		return crypto.SessionKey{}, err
	}
	mac := hmac.New(sha256.New, keys.Root[:])
	mac.Write([]byte(contentDerivationPrefix))
	var out crypto.SessionKey
	mac.Sum(out[:0])
	return out, nil
}

// hmacKey derives a commitment key: HMAC(root, prefix || user_id_hash).
func hmacKey(root crypto.SessionKey, prefix string, userIDHash crypto.Hash) crypto.Hash {
	mac := hmac.New(sha256.New, root[:])
	mac.Write([]byte(prefix))
	mac.Write(userIDHash[:])
	var out crypto.Hash
	mac.Sum(out[:0])
	return out
}

// publicWrapKey is the derivation anyone can compute from the share id.
func publicWrapKey(share types.ShareID) crypto.SessionKey {
	return crypto.SessionKey(crypto.HashAll([]byte(publicDerivationPrefix), []byte(share)))
}

// WrapSessionKey builds the encryption stanza of an index envelope for the
// given access class.
func (am *AccessManager) WrapSessionKey(share types.ShareID, folder types.FolderID, class types.AccessClass, session crypto.SessionKey, users []string, password string) (modules.KeyWrap, error) {
	wrap := modules.KeyWrap{
		AccessClass: class,
		AEAD:        "AES-256-GCM",
	}
	ad := []byte(share)

	switch class {
	case types.SharePublic:
		outer := publicWrapKey(share)
		wrap.WrappedKey = outer.EncryptBytes(session[:], ad)

	case types.ShareProtected:
		if password == "" {
			return modules.KeyWrap{}, errors.Extend(errors.New("protected share requires a password"), modules.ErrInvalidFormat)
		}
		salt := crypto.GenerateSalt()
		params := &types.KDFParams{
			Algorithm:  "pbkdf2-sha256",
			Salt:       salt[:],
			Iterations: crypto.PBKDF2Iterations,
		}
		outer := crypto.PBKDF2Key(password, salt[:], params.Iterations)
		wrap.KDF = params
		wrap.WrappedKey = outer.EncryptBytes(session[:], ad)
		if err := am.store.SetShareKDF(share, salt[:], params); err != nil {
			return modules.KeyWrap{}, err
		}

	case types.SharePrivate:
		if len(users) == 0 {
			return modules.KeyWrap{}, errors.Extend(errors.New("private share requires at least one user"), modules.ErrInvalidFormat)
		}
		keys, err := am.FolderKeys(folder)
		if err != nil {
			return modules.KeyWrap{}, err
		}
		for _, user := range users {
			userIDHash := crypto.HashBytes([]byte(user))
			wrapKey := crypto.SessionKey(hmacKey(keys.Root, wrapPrefix, userIDHash))
			commitment := types.AccessCommitment{
				UserIDHash:        userIDHash,
				VerificationKey:   hmacKey(keys.Root, verificationPrefix, userIDHash),
				WrappedSessionKey: wrapKey.EncryptBytes(session[:], ad),
			}
			wrap.Commitments = append(wrap.Commitments, commitment)
		}
		if err := am.store.AddAccessCommitments(share, wrap.Commitments); err != nil {
			return modules.KeyWrap{}, err
		}

	default:
		return modules.KeyWrap{}, errors.Extend(errors.New("unknown access class"), modules.ErrInvalidFormat)
	}
	return wrap, nil
}

// UnwrapSessionKey recovers the session key from a KeyWrap using the
// caller's credentials. Every failure path collapses to ErrAccessDenied; no
// oracle distinguishes an unknown user from a wrong share or password.
func (am *AccessManager) UnwrapSessionKey(share types.ShareID, wrap modules.KeyWrap, creds modules.Credentials) (crypto.SessionKey, error) {
	ad := []byte(share)

	switch wrap.AccessClass {
	case types.SharePublic:
		outer := publicWrapKey(share)
		plaintext, err := outer.DecryptBytes(wrap.WrappedKey, ad)
		if err != nil {
			return crypto.SessionKey{}, modules.ErrAccessDenied
		}
		var session crypto.SessionKey
		copy(session[:], plaintext)
		return session, nil

	case types.ShareProtected:
		if creds.Password == "" || wrap.KDF == nil {
			return crypto.SessionKey{}, modules.ErrAccessDenied
		}
		var outer crypto.SessionKey
		switch wrap.KDF.Algorithm {
		case "pbkdf2-sha256":
			outer = crypto.PBKDF2Key(creds.Password, wrap.KDF.Salt, wrap.KDF.Iterations)
		case "scrypt":
			var err error
			outer, err = crypto.ScryptKey(creds.Password, wrap.KDF.Salt, wrap.KDF.N, wrap.KDF.R, wrap.KDF.P)
			if err != nil {
				return crypto.SessionKey{}, modules.ErrAccessDenied
			}
		default:
			return crypto.SessionKey{}, errors.Extend(crypto.ErrUnknownKDF, modules.ErrInvalidFormat)
		}
		plaintext, err := outer.DecryptBytes(wrap.WrappedKey, ad)
		if err != nil {
			return crypto.SessionKey{}, modules.ErrAccessDenied
		}
		var session crypto.SessionKey
		copy(session[:], plaintext)
		return session, nil

	case types.SharePrivate:
		if creds.UserID == "" || !creds.HasRoot {
			return crypto.SessionKey{}, modules.ErrAccessDenied
		}
		userIDHash := crypto.HashBytes([]byte(creds.UserID))
		verification := hmacKey(creds.FolderRoot, verificationPrefix, userIDHash)
		for _, commitment := range wrap.Commitments {
			if commitment.VerificationKey != verification {
				continue
			}
			wrapKey := crypto.SessionKey(hmacKey(creds.FolderRoot, wrapPrefix, userIDHash))
			plaintext, err := wrapKey.DecryptBytes(commitment.WrappedSessionKey, ad)
			if err != nil {
				// The commitment matched but the wrap did not verify;
				// treat it like any other denial.
				return crypto.SessionKey{}, modules.ErrAccessDenied
			}
			var session crypto.SessionKey
			copy(session[:], plaintext)
			return session, nil
		}
		return crypto.SessionKey{}, modules.ErrAccessDenied

	default:
		return crypto.SessionKey{}, errors.Extend(errors.New("unknown access class"), modules.ErrInvalidFormat)
	}
}
