package commands

import (
	"lodgemirror/cmd/lodge-cli/utils"
	"lodgemirror/internal/wikitext"
	"lodgemirror/lib/serviceutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var parseName *string

func init() {
	parseName = parseCmd.Flags().String("name", "", "The trainer name to record, defaults to the file name without its extension.")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <file.wikitext> [--name <trainer>]",
	Short: "Parses a locally saved trainer lodge page and prints the record.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		markup, err := os.ReadFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read page", err)
		}

		name := *parseName
		if name == "" {
			base := filepath.Base(args[0])
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}

		record := wikitext.Parse(string(markup), name)
		err = utils.WriteJSON(os.Stdout, record)
		if err != nil {
			serviceutil.Fatal("failed to write record", err)
		}
	},
}
