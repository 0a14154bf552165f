package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/contemptx/usenetsync-sub004/api"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage synchronized folders",
	Long:  "List registered folders or register a new one",
	Run: func(cmd *cobra.Command, _ []string) {
		folderlistcmd()
	},
}

var folderAddCmd = &cobra.Command{
	Use:   "add [path] [name]",
	Short: "Register a folder for synchronization",
	Long:  "Register the directory at path under an optional display name",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(_ *cobra.Command, args []string) {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		folderaddcmd(args[0], name)
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered folders",
	Long:  "List every folder registered with the daemon",
	Args:  cobra.NoArgs,
	Run: func(*cobra.Command, []string) {
		folderlistcmd()
	},
}

func init() {
	folderCmd.AddCommand(folderAddCmd, folderListCmd)
}

// folderaddcmd registers a folder with the daemon.
func folderaddcmd(path, name string) {
	body, _ := json.Marshal(map[string]string{"path": path, "name": name})
	var folder struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayname"`
	}
	err := postAPI("/folders", string(body), &folder)
	if err != nil {
		die("Could not add folder:", err)
	}
	fmt.Printf("Added folder %v (id %v)\n", folder.DisplayName, folder.ID)
}

// folderlistcmd prints the registered folders.
func folderlistcmd() {
	var list api.FolderListResponse
	err := getAPI("/folders", &list)
	if err != nil {
		die("Could not fetch folders:", err)
	}
	if len(list.Folders) == 0 {
		fmt.Println("No folders registered.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tName\tPath\tState")
	for _, folder := range list.Folders {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", folder.ID, folder.DisplayName, folder.LocalPath, folder.State)
	}
	w.Flush()
}
