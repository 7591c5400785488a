package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/internal/version"
	"github.com/jmylchreest/fixprice/pkg/fixprice"
)

var brandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "List brands featured on the home page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
			return c.Advertising.HomeBrandsList(ctx)
		})
	},
}

var imageCmd = &cobra.Command{
	Use:   "image URL",
	Short: "Download a product image",
	Long: `Download an image from the storefront CDN.

No browser session is needed: the image is fetched directly, through
--proxy when set, and retried with exponential back-off.

The file is written to --output, or to the current directory under the
last segment of the URL path.`,
	Args: cobra.ExactArgs(1),
	RunE: runImage,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.IsSet("format") {
			fmt.Println(version.Full())
			return nil
		}
		w, closeWriter, err := openWriter()
		if err != nil {
			return err
		}
		defer closeWriter()
		return w.Write(version.Get())
	},
}

func init() {
	rootCmd.AddCommand(brandsCmd, imageCmd, versionCmd)

	f := imageCmd.Flags()
	f.Int("attempts", 3, "download attempts")
	f.Duration("image-timeout", 10*time.Second, "per-attempt timeout, also the longest back-off wait")
	f.String("max-image-size", "20MB", "refuse larger images (e.g., 500KB, 5MB, 0=unlimited)")
	_ = viper.BindPFlag("max_image_size", f.Lookup("max-image-size"))
}

func runImage(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	attempts, _ := cmd.Flags().GetInt("attempts")
	timeout, _ := cmd.Flags().GetDuration("image-timeout")

	// 0 or empty means unlimited
	var maxBytes int64
	if s := strings.TrimSpace(viper.GetString("max_image_size")); s != "" && s != "0" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return fmt.Errorf("invalid max-image-size %q: %w", s, err)
		}
		maxBytes = int64(n)
	}

	var opts []fixprice.Option
	if proxy := viper.GetString("proxy"); proxy != "" {
		opts = append(opts, fixprice.WithProxy(proxy))
	}
	general := fixprice.NewGeneralService(opts...)

	img, err := general.DownloadImage(ctx, args[0], fixprice.DownloadOptions{
		Attempts: attempts,
		Timeout:  timeout,
		MaxBytes: maxBytes,
	})
	if err != nil {
		return err
	}

	path := viper.GetString("output")
	if path == "" {
		path = img.Name
	}
	if path == "" || path == "/" || path == "." {
		return fmt.Errorf("cannot name the image after %q; pass --output", args[0])
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil { //#nosec G306 -- images are not sensitive
		return err
	}

	logger.Debug("image saved", "path", path, "content_type", img.ContentType)
	logInfo("Saved %s (%s, %s)", path, humanize.Bytes(uint64(len(img.Data))), img.ContentType)
	return nil
}
