// photomapo turns geotagged photos into postcards with a map of where they were taken.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tstromberg/photomapo/pkg/metadata"
	"github.com/tstromberg/photomapo/pkg/photomapo"
	"github.com/tstromberg/photomapo/pkg/server"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(photomapo.NewViper()).ExecuteContext(ctx); err != nil {
		klog.Exitf("%v", err)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "photomapo",
		Short:         "Turn geotagged photos into postcards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML, TOML or JSON config file")
	root.PersistentFlags().String("provider", "", "map provider: mapbox or osm (default: mapbox if a token is set)")
	root.PersistentFlags().String("mapbox-token", "", "Mapbox access token (or MAPBOX_TOKEN)")
	root.PersistentFlags().String("exif-backend", "", "EXIF reader: goexif or exiftool")
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	load := func(cmd *cobra.Command, keys map[string]string) (*photomapo.Config, error) {
		if err := bindFlags(v, cmd.Flags(), keys); err != nil {
			return nil, err
		}
		if err := bindFlags(v, cmd.Flags(), map[string]string{
			"provider":     "provider",
			"mapbox_token": "mapbox-token",
			"exif_backend": "exif-backend",
		}); err != nil {
			return nil, err
		}
		return photomapo.LoadConfig(v, configPath)
	}

	root.AddCommand(
		newExtractCommand(load),
		newComposeCommand(load),
		newBuildCommand(load),
		newServeCommand(load),
	)
	return root
}

type loader func(cmd *cobra.Command, keys map[string]string) (*photomapo.Config, error)

// bindFlags binds config keys to the named flags of fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("no such flag: --%s", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

func newExtractCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <photo>",
		Short: "Print the EXIF and GPS metadata of a photo as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load(cmd, nil)
			if err != nil {
				return err
			}

			ex, closer, err := extractor(c)
			if err != nil {
				return err
			}
			defer closer()

			md, err := ex.Extract(args[0])
			if err != nil {
				return err
			}

			bs, err := json.MarshalIndent(md, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(bs))
			return nil
		},
	}
}

// extractor returns a metadata extractor for c's EXIF backend.
func extractor(c *photomapo.Config) (*metadata.Extractor, func(), error) {
	if c.ExifBackend != "exiftool" {
		return metadata.NewExtractor(nil), func() {}, nil
	}
	et, err := metadata.NewExiftoolSource()
	if err != nil {
		return nil, nil, err
	}
	return metadata.NewExtractor(et), func() { et.Close() }, nil
}

func newComposeCommand(load loader) *cobra.Command {
	var mapImage string

	cmd := &cobra.Command{
		Use:   "compose <photo> <postcard>",
		Short: "Compose a single postcard",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load(cmd, map[string]string{
				"notes":        "note",
				"style":        "style",
				"zoom":         "zoom",
				"quality":      "quality",
				"map_fallback": "map-fallback",
			})
			if err != nil {
				return err
			}
			c.Caption = false

			b, err := photomapo.NewBuilder(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer b.Close()

			md, err := b.Extractor().Extract(args[0])
			if err != nil {
				return err
			}
			photomapo.Annotate(md, c.Notes, c.Style, c.Zoom)

			if mapImage != "" {
				m, err := imgio.Open(mapImage)
				if err != nil {
					return fmt.Errorf("map image: %w", err)
				}
				md.Set(metadata.MapImage, m)
			}

			_, err = b.Composer().Create(cmd.Context(), args[0], md, args[1], c.Quality)
			return err
		},
	}

	cmd.Flags().StringArray("note", nil, "note to print on the postcard (repeatable)")
	cmd.Flags().String("style", "", "map style, e.g. streets, outdoors, satellite")
	cmd.Flags().Int("zoom", 0, "map zoom level (1-20)")
	cmd.Flags().Int("quality", 0, "JPEG quality")
	cmd.Flags().Bool("map-fallback", true, "draw a placeholder if the map cannot be fetched")
	cmd.Flags().StringVar(&mapImage, "map-image", "", "use this image as the map instead of fetching one")
	return cmd
}

func newBuildCommand(load loader) *cobra.Command {
	var watch, listen bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build postcards and a gallery for directories of photos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := load(cmd, map[string]string{
				"in_dirs":        "in",
				"out_dir":        "out",
				"title":          "title",
				"format":         "format",
				"notes":          "note",
				"style":          "style",
				"zoom":           "zoom",
				"copy_originals": "copy-originals",
				"caption":        "caption",
				"addr":           "addr",
			})
			if err != nil {
				return err
			}
			if len(c.InDirs) == 0 {
				return fmt.Errorf("--in is a required flag")
			}
			if c.OutDir == "" {
				return fmt.Errorf("--out is a required flag")
			}
			return build(cmd.Context(), c, watch, listen)
		},
	}

	cmd.Flags().StringSlice("in", nil, "input directory (repeatable)")
	cmd.Flags().String("out", "", "output directory")
	cmd.Flags().String("title", "", "title of the gallery")
	cmd.Flags().String("format", "", "postcard format: jpg, png or bmp")
	cmd.Flags().StringArray("note", nil, "note to print on every postcard (repeatable)")
	cmd.Flags().String("style", "", "map style")
	cmd.Flags().Int("zoom", 0, "map zoom level (1-20)")
	cmd.Flags().Bool("copy-originals", false, "copy source photos into the output directory")
	cmd.Flags().Bool("caption", false, "caption photos with Gemini (needs GEMINI_API_KEY)")
	cmd.Flags().String("addr", "", "host:port to bind to with --listen")
	cmd.Flags().BoolVar(&watch, "watch", false, "watch the input directories and rebuild")
	cmd.Flags().BoolVar(&listen, "listen", false, "serve the gallery and API via HTTP")
	return cmd
}

func build(ctx context.Context, c *photomapo.Config, watch, listen bool) error {
	b, err := photomapo.NewBuilder(ctx, c)
	if err != nil {
		return err
	}
	defer b.Close()

	var pub *photomapo.Publisher
	if c.S3.Enabled() {
		pub, err = photomapo.NewPublisher(ctx, c.S3)
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
	}

	if _, err := b.Run(ctx, pub); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if watch {
		g.Go(func() error {
			return photomapo.Watch(ctx, c.InDirs, c.OutDir, func(ctx context.Context) error {
				_, err := b.Run(ctx, pub)
				return err
			})
		})
	}
	if listen {
		g.Go(func() error {
			return server.New(b.Extractor(), b.Composer(), c.OutDir).ListenAndServe(ctx, c.Addr)
		})
	}
	return g.Wait()
}

func newServeCommand(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the metadata and postcard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := load(cmd, map[string]string{
				"addr":         "addr",
				"out_dir":      "out",
				"map_fallback": "map-fallback",
			})
			if err != nil {
				return err
			}
			c.Caption = false

			b, err := photomapo.NewBuilder(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer b.Close()

			return server.New(b.Extractor(), b.Composer(), c.OutDir).ListenAndServe(cmd.Context(), c.Addr)
		},
	}

	cmd.Flags().String("addr", "", "host:port to bind to")
	cmd.Flags().String("out", "", "directory of built postcards to serve at /")
	cmd.Flags().Bool("map-fallback", true, "draw a placeholder if the map cannot be fetched")
	return cmd
}
