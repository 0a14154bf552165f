package modules

import (
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/types"
)

// FolderKeys is the decrypted key material of one folder: an ed25519
// signing keypair and a 32-byte symmetric root. The material is stored
// encrypted at rest and must be zeroized by holders when released.
type FolderKeys struct {
	SigningKey crypto.SecretKey
	PublicKey  crypto.PublicKey
	Root       crypto.SessionKey
}

// Credentials identify the actor on a consume call. UserID and FolderRoot
// authorize private shares; Password authorizes protected shares. Public
// shares need no credentials.
type Credentials struct {
	UserID     string
	FolderRoot crypto.SessionKey
	HasRoot    bool
	Password   string
}

// KeyWrap is the encryption stanza of a published index envelope. For
// public shares WrappedKey is the session key under a public constant
// derivation; for protected shares it is wrapped under the password-derived
// key; for private shares only the commitments can unwrap it.
type KeyWrap struct {
	AccessClass types.AccessClass        `json:"accessclass"`
	AEAD        string                   `json:"aead"`
	KDF         *types.KDFParams         `json:"kdf,omitempty"`
	WrappedKey  []byte                   `json:"wrappedkey,omitempty"`
	Commitments []types.AccessCommitment `json:"accesscommitments,omitempty"`
}

// An AccessManager owns folder key material and the cryptography of share
// access: session key wrapping per access class, per-recipient commitments,
// and password derivations.
type AccessManager interface {
	// CreateFolderKeys generates and persists key material for a new
	// folder.
	CreateFolderKeys(folder types.FolderID) (FolderKeys, error)

	// FolderKeys loads and decrypts the folder's key material.
	FolderKeys(folder types.FolderID) (FolderKeys, error)

	// AssignSessionKey draws the fresh session key for one publish and
	// persists it on the share row, wrapped under the folder root. The key
	// never appears in the store or on the wire in the clear.
	AssignSessionKey(share types.ShareID, folder types.FolderID) (crypto.SessionKey, error)

	// SessionKeyForShare recovers a share's session key from the store,
	// unwrapping it with the folder root.
	SessionKeyForShare(share types.ShareID) (crypto.SessionKey, error)

	// ContentKey derives the folder's segment encryption key from the
	// folder root. The key is stable across publishes, so a new share can
	// reference segments posted for an earlier one; recipients receive it
	// inside the encrypted index document.
	ContentKey(folder types.FolderID) (crypto.SessionKey, error)

	// WrapSessionKey builds the KeyWrap stanza for the given access class.
	// Private shares require at least one user id; protected shares require
	// a password. A fresh salt is drawn per call.
	WrapSessionKey(share types.ShareID, folder types.FolderID, class types.AccessClass, session crypto.SessionKey, users []string, password string) (KeyWrap, error)

	// UnwrapSessionKey recovers the session key from a KeyWrap using the
	// caller's credentials. Failure to match a commitment or derive the
	// correct key yields ErrAccessDenied with no further distinction.
	UnwrapSessionKey(share types.ShareID, wrap KeyWrap, creds Credentials) (crypto.SessionKey, error)
}
