package main

import (
	"fmt"
	"os"
	"time"

	"filebox/internal/format"
	"filebox/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeFileTable(listing models.FileListing) error {
	if len(listing.Files) == 0 && len(listing.Bundles) == 0 {
		return writePlain("no files\n")
	}
	if err := writePlain("ID\tKIND\tSIZE\tUPLOADED\tNAME\n"); err != nil {
		return err
	}
	for _, group := range [][]models.FileReference{listing.Files, listing.Bundles} {
		for _, ref := range group {
			if err := writePlain("%s\t%s\t%s\t%s\t%s\n", ref.BlobID, ref.Kind, formatBytes(ref.Size), formatTime(ref.UploadedAt), ref.DisplayName); err != nil {
				return err
			}
			for _, c := range ref.Constituents {
				if err := writePlain("\t\t%s\t\t  %s\n", formatBytes(c.Size), c.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Local().Format("2006-01-02 15:04")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
