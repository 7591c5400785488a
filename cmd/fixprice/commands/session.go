package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/internal/output"
	"github.com/jmylchreest/fixprice/pkg/fixprice"
)

// apiCall is one façade call made with a warmed-up client.
type apiCall func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error)

// clientOptions builds library options from flags, env and the config file.
func clientOptions() []fixprice.Option {
	opts := []fixprice.Option{
		fixprice.WithHeadless(viper.GetBool("headless")),
		fixprice.WithTimeout(viper.GetDuration("timeout")),
		fixprice.WithTransport(fixprice.TransportMode(viper.GetString("transport"))),
		fixprice.WithRetries(viper.GetInt("retries")),
		fixprice.WithRateLimit(viper.GetInt("rate_limit")),
		fixprice.WithCityID(viper.GetInt("city")),
		fixprice.WithLanguage(viper.GetString("language")),
	}
	if proxy := viper.GetString("proxy"); proxy != "" {
		opts = append(opts, fixprice.WithProxy(proxy))
	}
	if path := viper.GetString("chrome_path"); path != "" {
		opts = append(opts, fixprice.WithExecPath(path))
	}
	return opts
}

// openWriter sets up the output destination. The returned close func
// flushes the writer and closes the file.
func openWriter() (output.Writer, func(), error) {
	format, err := output.ParseFormat(viper.GetString("format"))
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stdout
	var file *os.File
	if path := viper.GetString("output"); path != "" {
		file, err = os.Create(path) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logger.Error("failed to create output file", "path", path, "error", err)
			return nil, nil, err
		}
		out = file
	}

	w, err := output.NewWriter(out, format)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, err
	}
	return w, func() {
		_ = w.Close()
		if file != nil {
			_ = file.Close()
		}
	}, nil
}

// runAPI opens a session, performs call and writes its payload.
func runAPI(call apiCall) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w, closeWriter, err := openWriter()
	if err != nil {
		return err
	}
	defer closeWriter()

	logInfo("Warming up session...")
	client, err := fixprice.Open(ctx, clientOptions()...)
	if err != nil {
		return describe(err)
	}
	defer func() { _ = client.Close() }()

	resp, err := call(ctx, client)
	if err != nil {
		return describe(err)
	}
	logger.Debug("api call done", "url", resp.URL, "status", resp.Status, "attempts", resp.Attempts)

	return w.Write(resp.Payload)
}

// describe adds the hints a CLI user needs to the library errors.
func describe(err error) error {
	var werr *fixprice.WarmupError
	switch {
	case errors.As(err, &werr) && werr.Diagnostic.Challenge != "":
		return fmt.Errorf("%w\nthe site answered with a %s challenge; try --headless=false or a different --proxy",
			err, werr.Diagnostic.Challenge)
	case errors.Is(err, fixprice.ErrCityRequired):
		return fmt.Errorf("%w (pass --city)", err)
	case errors.Is(err, fixprice.ErrRetryExhausted):
		return fmt.Errorf("%w\nthe API kept rejecting the session; raise --retries or try later", err)
	default:
		return err
	}
}
