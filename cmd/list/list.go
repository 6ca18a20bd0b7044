// Package list implements the list command, printing stored gallery
// records to stdout.
package list

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/logging"
	"github.com/tphakala/lensstory/internal/photo"
	"github.com/tphakala/lensstory/internal/store"
)

// Command creates the list command.
func Command(settings *conf.Settings) *cobra.Command {
	var communityOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored photos, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, communityOnly)
		},
	}

	cmd.Flags().BoolVar(&communityOnly, "community", false, "Show only public photos")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, communityOnly bool) error {
	logger := logging.ForService("list")

	ds := store.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error("Failed to close datastore", "error", err)
		}
	}()

	photos, err := ds.GetAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list photos: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tPRIVACY\tTITLE\tTAGS")
	count := 0
	for i := range photos {
		p := &photos[i]
		if communityOnly && p.Privacy != photo.PrivacyPublic {
			continue
		}
		title, tags := "-", "-"
		if p.Analysis != nil {
			title = p.Analysis.Title
			tags = strings.Join(p.Analysis.Tags, ",")
		} else if p.Error != "" {
			title = "(analysis failed)"
		}
		created := time.UnixMilli(p.Timestamp).Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, created, p.Privacy, title, tags)
		count++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d photo(s), backend %s\n", count, store.BackendName(settings))

	return nil
}
