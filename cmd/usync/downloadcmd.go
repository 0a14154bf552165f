package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contemptx/usenetsync-sub004/api"
	"github.com/contemptx/usenetsync-sub004/modules"
)

var downloadCmd = &cobra.Command{
	Use:   "download [share string] [destination]",
	Short: "Download a share",
	Long: `Download the folder named by a share string into the destination
directory. Protected shares take --password; private shares take --user and
--root.`,
	Args: cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		downloadcmd(args[0], args[1])
	},
}

var queueCmd = &cobra.Command{
	Use:   "queues",
	Short: "Show queue statistics",
	Long:  "Show the occupancy of the upload and download queues",
	Args:  cobra.NoArgs,
	Run: func(*cobra.Command, []string) {
		queuecmd()
	},
}

func init() {
	downloadCmd.Flags().StringVar(&sharePassword, "password", "", "password of a protected share")
	downloadCmd.Flags().StringVar(&downloadUserID, "user", "", "user id for a private share")
	downloadCmd.Flags().StringVar(&downloadRoot, "root", "", "hex folder root for a private share")
}

// downloadcmd consumes a share into a destination.
func downloadcmd(shareString, destination string) {
	body, _ := json.Marshal(map[string]string{
		"sharestring": shareString,
		"destination": destination,
		"password":    sharePassword,
		"userid":      downloadUserID,
		"folderroot":  downloadRoot,
	})
	var outcome modules.DownloadOutcome
	err := postAPI("/downloads", string(body), &outcome)
	if err != nil {
		die("Could not download:", err)
	}

	complete := 0
	for _, file := range outcome.Files {
		if file.Status == modules.FileComplete {
			complete++
		}
	}
	fmt.Printf("Downloaded %v of %v files.\n", complete, len(outcome.Files))
	for _, file := range outcome.Files {
		if file.Status != modules.FileComplete {
			fmt.Printf("  INCOMPLETE %v (missing segments: %v)\n", file.Path, file.MissingSegments)
		}
	}
}

// queuecmd prints queue statistics.
func queuecmd() {
	var queues api.QueueResponse
	err := getAPI("/queues", &queues)
	if err != nil {
		die("Could not fetch queue statistics:", err)
	}
	fmt.Printf("Upload:   %d pending, %d in progress, %d retrying, %d completed, %d failed\n",
		queues.Upload.Pending, queues.Upload.InProgress, queues.Upload.Retrying,
		queues.Upload.Completed, queues.Upload.Failed)
	fmt.Printf("Download: %d pending, %d in progress, %d retrying, %d completed, %d failed\n",
		queues.Download.Pending, queues.Download.InProgress, queues.Download.Retrying,
		queues.Download.Completed, queues.Download.Failed)
}
