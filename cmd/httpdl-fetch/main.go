// Command httpdl-fetch is a minimal Wget-style CLI over the httpdl
// engine: one positional URL argument, flags for the options
// httpdl.FetchOptions exposes.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/arourke/httpdl"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "httpdl-fetch:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "httpdl-fetch <url>",
		Short: "Fetch a URL with the httpdl HTTP/1.1 engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), v, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringP("output-document", "O", "", "write output to this file instead of a name derived from the URL")
	flags.String("user", "", "username for HTTP authentication")
	flags.String("password", "", "password for HTTP authentication")
	flags.Bool("content-disposition", false, "honor the Content-Disposition response header for the output filename")
	flags.Bool("no-clobber", false, "skip the download if the output file already exists")
	flags.BoolP("continue", "c", false, "resume a partially downloaded file")
	flags.Bool("timestamping", false, "only download if the server's copy is newer (-N)")
	flags.Bool("spider", false, "don't download anything, just check the resource exists")
	flags.Int64("start-pos", 0, "start the download at this byte offset")
	flags.Int("tries", 20, "number of retries before giving up (0 = infinite)")
	flags.Bool("retry-on-host-error", false, "retry even when the hostname fails to resolve")
	flags.String("referer", "", "Referer header to send")
	flags.String("cookie-jar", "", "path to a persistent cookie jar file")
	flags.String("hsts-file", "", "path to an HSTS policy file")
	flags.String("netrc-file", "", "path to a .netrc file for default credentials")
	flags.String("warc-file", "", "mirror the exchange into this WARC file")
	flags.Bool("no-compression", false, "disable gzip Accept-Encoding / inline decoding")
	flags.Bool("no-keep-alive", false, "send Connection: close on every request")
	flags.Bool("insecure", false, "skip TLS certificate verification")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("HTTPDL")
	v.AutomaticEnv()

	return cmd
}

func runFetch(ctx context.Context, v *viper.Viper, rawURL string) error {
	client, err := httpdl.New(httpdl.Config{
		CompressionEnabled: !v.GetBool("no-compression"),
		InhibitKeepAlive:   v.GetBool("no-keep-alive"),
		RetryHostErr:       v.GetBool("retry-on-host-error"),
		CookieJarPath:      v.GetString("cookie-jar"),
		HSTSFilePath:       v.GetString("hsts-file"),
		NetrcPath:          v.GetString("netrc-file"),
		WARCPath:           v.GetString("warc-file"),
		InsecureTLS:        v.GetBool("insecure"),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Fetch(ctx, rawURL, httpdl.FetchOptions{
		OutputDocument:      v.GetString("output-document"),
		User:                v.GetString("user"),
		Password:            v.GetString("password"),
		Referer:             v.GetString("referer"),
		ContentDisposition:  v.GetBool("content-disposition"),
		NoClobber:           v.GetBool("no-clobber"),
		Timestamping:        v.GetBool("timestamping"),
		UseServerTimestamps: v.GetBool("timestamping"),
		Spider:              v.GetBool("spider"),
		Resume:              v.GetBool("continue"),
		StartPos:            v.GetInt64("start-pos"),
		NTry:                v.GetInt("tries"),
		RetryHostErr:        v.GetBool("retry-on-host-error"),
	})
	if err != nil {
		return err
	}

	if v.GetBool("spider") {
		if result.Exists {
			fmt.Println("remote file exists")
			return nil
		}
		return fmt.Errorf("remote file does not exist")
	}

	if result.AlreadyExists {
		fmt.Printf("%s already exists, not retrieved\n", result.OutputPath)
		return nil
	}

	fmt.Printf("%s saved [%d/%d] in %d attempt(s)\n", result.OutputPath, result.Len, result.ContentLength, result.Attempts)
	return nil
}
