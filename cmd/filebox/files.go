package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		bundle bool
		name   string
	)

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload a file, or several files as one bundle",
		Args:  requireAtLeastArgs(1, "at least one path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && !bundle {
				return fmt.Errorf("uploading several files requires --bundle")
			}
			req, closeBody, err := uploadRequestFor(args, bundle, name)
			if err != nil {
				return err
			}
			defer closeBody()

			return withAuthClient(cfg, func(client *api.Client) error {
				resp, err := client.Upload(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				kind := "file"
				if resp.IsZipped {
					kind = fmt.Sprintf("bundle of %d files", len(resp.File.Constituents))
				}
				return writePlain("uploaded %s (%s, %s) as %s\n", resp.File.DisplayName, kind, formatBytes(resp.File.Size), resp.FileID)
			})
		},
	}

	cmd.Flags().BoolVar(&bundle, "bundle", false, "zip the given files and upload them as one bundle")
	cmd.Flags().StringVar(&name, "name", "", "stored file name (default: base name of the path, or files.zip)")
	return cmd
}

func uploadRequestFor(paths []string, bundle bool, name string) (api.UploadRequest, func(), error) {
	if bundle {
		archive, err := buildBundle(paths)
		if err != nil {
			return api.UploadRequest{}, nil, err
		}
		if strings.TrimSpace(name) == "" {
			name = "files.zip"
		}
		return api.UploadRequest{
			Filename:     name,
			ContentType:  "application/zip",
			Size:         archive.size,
			Bundle:       true,
			Constituents: archive.constituents,
			Body:         archive,
		}, func() { _ = archive.Close() }, nil
	}

	f, err := os.Open(paths[0])
	if err != nil {
		return api.UploadRequest{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return api.UploadRequest{}, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return api.UploadRequest{}, nil, fmt.Errorf("%s is a directory; use --bundle with its files", paths[0])
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(paths[0])
	}
	return api.UploadRequest{
		Filename:    name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Size:        info.Size(),
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your files and bundles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				listing, err := client.ListFiles(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(listing)
				}
				return writeFileTable(listing)
			})
		},
	}
}

func newGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "get <file-id>",
		Short: "Download a file",
		Args:  requireExactlyArgs(1, "file id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				if outPath == "-" {
					_, err := client.Download(cmd.Context(), args[0], os.Stdout)
					return err
				}
				info, path, err := downloadToFile(cmd, client, args[0], outPath)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"path": path, "file": info})
				}
				return writePlain("saved %s (%s)\n", path, formatBytes(info.Size))
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path, or - for stdout (default: the stored file name)")
	return cmd
}

// downloadToFile writes into a temp file beside the target and renames it
// into place once the transfer completed.
func downloadToFile(cmd *cobra.Command, client *api.Client, id, outPath string) (api.DownloadInfo, string, error) {
	dir := "."
	if outPath != "" {
		dir = filepath.Dir(outPath)
	}
	tmp, err := os.CreateTemp(dir, ".filebox-download-*")
	if err != nil {
		return api.DownloadInfo{}, "", err
	}
	defer os.Remove(tmp.Name())

	info, err := client.Download(cmd.Context(), id, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return info, "", err
	}

	path := outPath
	if path == "" {
		path = filepath.Base(info.Filename)
		if path == "" || path == "." || path == string(filepath.Separator) {
			path = id
		}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return info, "", err
	}
	return info, path, nil
}
