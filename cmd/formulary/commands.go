package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/formulary/internal"
	"github.com/starford/formulary/internal/clipboard"
	"github.com/starford/formulary/internal/convert"
	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/serialize"
	"github.com/starford/formulary/internal/storage"
)

// argOrStdin returns the first argument, or stdin when it is absent or "-".
func argOrStdin(cmd *cli.Command) (string, error) {
	if arg := cmd.Args().First(); arg != "" && arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// withSession opens the persisted editor for the duration of fn.
func withSession(cmd *cli.Command, fn func(s *internal.Session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sess, err := internal.OpenSession(cfg, cliLogger(cfg))
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert markup to expression text",
		ArgsUsage: "<markup>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Also report the conversion tier"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			markup, err := argOrStdin(cmd)
			if err != nil {
				return err
			}
			conv := convert.New(
				convert.WithMaxDepth(cfg.Editor.MaxConversionDepth),
				convert.WithLogger(cliLogger(cfg)),
			)
			res := conv.Convert(markup)
			if cmd.Bool("verbose") {
				return printJSON(os.Stdout, map[string]any{
					"expression": res.Expression,
					"tier":       res.Tier.String(),
					"degraded":   res.Degraded(),
				})
			}
			_, err = fmt.Fprintln(os.Stdout, res.Expression)
			return err
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a formula and print its markup and accessibility label",
		ArgsUsage: "<source>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(models.FormatExpression), Usage: "expression or markup"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: string(models.KindInline), Usage: "inline or block"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			src, err := argOrStdin(cmd)
			if err != nil {
				return err
			}
			ed, err := editor.New(
				editor.WithLogger(cliLogger(cfg)),
				editor.WithMaxConversionDepth(cfg.Editor.MaxConversionDepth),
			)
			if err != nil {
				return err
			}
			res, err := ed.Preview(editor.Input{
				Kind:         models.Kind(cmd.String("kind")),
				SourceFormat: models.Format(cmd.String("format")),
				SourceText:   src,
			})
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, res)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the stored formulas as JSON or HTML",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file; the extension picks the format. Stdout when empty"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json or html, overriding the file extension"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmd.String("out")
			format := cmd.String("format")
			if format == "" {
				format = storage.FormatOf(out)
			}
			if format == "" {
				format = storage.FormatJSON
			}
			return withSession(cmd, func(s *internal.Session) error {
				var doc []byte
				switch format {
				case storage.FormatJSON:
					data, err := s.Editor.ExportJSON()
					if err != nil {
						return err
					}
					doc = data
				case storage.FormatHTML:
					doc = []byte(s.Editor.ExportHTML())
				default:
					return fmt.Errorf("unknown export format %q", format)
				}
				if out == "" {
					_, err := os.Stdout.Write(doc)
					return err
				}
				store, err := storage.NewFS(filepath.Dir(out))
				if err != nil {
					return err
				}
				return store.Write(filepath.Base(out), doc)
			})
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a JSON or HTML export file into the stored formulas",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json or html, overriding the file extension"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("import: file argument is required")
			}
			format := cmd.String("format")
			if format == "" {
				format = storage.FormatOf(path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			return withSession(cmd, func(s *internal.Session) error {
				var res serialize.ImportResult
				switch format {
				case storage.FormatJSON:
					res, err = s.Editor.ImportJSON(data)
				case storage.FormatHTML:
					res, err = s.Editor.ImportHTML(string(data))
				default:
					return fmt.Errorf("import: unknown format for %s", path)
				}
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, res)
			})
		},
	}
}

func systemClipboard() (*clipboard.SystemClipboard, error) {
	cb := clipboard.NewSystem()
	if !cb.Supported() {
		return nil, fmt.Errorf("no system clipboard available")
	}
	return cb, nil
}

func copyCommand() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "Copy a stored formula to the system clipboard",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("copy: id argument is required")
			}
			cb, err := systemClipboard()
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *internal.Session) error {
				if err := s.Editor.SelectFormula(id); err != nil {
					return err
				}
				ok, err := s.Editor.Copy(cb)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("copy: nothing selected")
				}
				n, _ := s.Editor.Get(id)
				_, err = fmt.Fprintln(os.Stdout, clipboard.PlainText(n))
				return err
			})
		},
	}
}

func pasteCommand() *cli.Command {
	return &cli.Command{
		Name:  "paste",
		Usage: "Store the formula on the system clipboard as a new formula",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(models.FormatExpression), Usage: "Format of plain clipboard text"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: string(models.KindInline), Usage: "Kind of plain clipboard text"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cb, err := systemClipboard()
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *internal.Session) error {
				n, ok, err := s.Editor.Paste(cb)
				if err != nil {
					return err
				}
				if !ok {
					// Only text/plain survives between processes; it holds
					// the formula source verbatim.
					text, found := cb.GetData(clipboard.MIMEText)
					if !found || strings.TrimSpace(text) == "" {
						return fmt.Errorf("paste: clipboard holds no formula")
					}
					n, err = s.Editor.Insert(editor.Input{
						Kind:         models.Kind(cmd.String("kind")),
						SourceFormat: models.Format(cmd.String("format")),
						SourceText:   text,
					})
					if err != nil {
						return err
					}
				}
				return printJSON(os.Stdout, n)
			})
		},
	}
}
