// Package loop implements http_loop, the retry/redirect/timestamp wrapper
// around a single pkg/transaction.Execute attempt: initial filename and
// resume decisions, the numbered retry loop, success evaluation, and
// server-timestamp application.
package loop

import (
	"bytes"
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/arourke/httpdl/pkg/engine"
	"github.com/arourke/httpdl/pkg/httperr"
	"github.com/arourke/httpdl/pkg/sink"
	"github.com/arourke/httpdl/pkg/timing"
	"github.com/arourke/httpdl/pkg/transaction"
	"github.com/cenkalti/backoff/v4"
)

// Options configures one http_loop run: a single logical fetch, possibly
// spanning several transaction-engine attempts.
type Options struct {
	URL    engine.URL
	Method string // defaults to GET

	OutputDocument      string // -O; if set, this name is final
	ContentDisposition  bool   // honor Content-Disposition for the file name
	NoClobber           bool   // succeed immediately if OutputDocument absent and file exists
	AlwaysRest          bool   // together with ContentDisposition, forces a HEAD first
	Timestamping        bool   // -N
	UseServerTimestamps bool
	Spider              bool // HEAD-only existence check, no body written
	ResumePartial       bool // -c: resume from on-disk size
	StartPos            int64
	WARCFullRetrieve    bool // WARC recording always wants the full entity, ignoring restval

	UseProxy          bool
	CachingDisallowed bool

	NTry         int  // 0 = retry forever
	RetryHostErr bool

	Referer string
	User, Password string

	Body        []byte // non-nil sends a request body (e.g. POST), re-sent verbatim on each retry
	ContentType string
	Headers     []transaction.HeaderField
}

// Result is the outcome of a complete http_loop run.
type Result struct {
	Code          httperr.Code
	OutputPath    string
	Len           int64
	ContentLength int64
	IsHTML        bool
	AlreadyExists bool
	Exists        bool // spider mode: whether the resource exists
	NewLocation   string
	Attempts      int
	Metrics       timing.Metrics
}

// Run executes http_loop to completion: it retries retry-eligible
// transaction errors, evaluates success per spec §4.11 step 6, and applies
// server timestamps on success when requested.
func Run(ctx context.Context, cc *engine.ClientContext, opt Options) (*Result, error) {
	method := opt.Method
	if method == "" {
		method = "GET"
	}

	outputPath, mode, early := decideInitialFile(opt)
	if early != nil {
		return early, nil
	}

	headOnly := opt.Spider || (opt.ContentDisposition && opt.AlwaysRest) || (opt.Timestamping && sink.Exists(outputPath))

	var ifModifiedSince int64
	if opt.Timestamping && sink.Exists(outputPath) {
		if mtime, ok := statMtime(outputPath); ok {
			ifModifiedSince = mtime
		}
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = time.Second
	backoffPolicy.MaxInterval = 1024 * time.Second
	backoffPolicy.MaxElapsedTime = 0 // http_loop itself owns the try-count ceiling

	timer := timing.NewTimer()

	var restval int64
	switch {
	case opt.WARCFullRetrieve:
		restval = 0
	case opt.StartPos > 0:
		restval = opt.StartPos
	case opt.ResumePartial && mode == sink.ModeAppend:
		restval = sink.Size(outputPath)
	}

	attempt := 0
	for {
		attempt++
		if opt.NTry > 0 && attempt > opt.NTry {
			return nil, httperr.New(httperr.TryLimitExceeded, "loop.run", outputPath, nil)
		}
		if attempt > 1 {
			time.Sleep(backoffPolicy.NextBackOff())
		}

		wireMethod := method
		if headOnly {
			wireMethod = "HEAD"
		}
		txOpt := transaction.Options{
			Method:                  wireMethod,
			URL:                     opt.URL,
			Referer:                 opt.Referer,
			RestVal:                 restval,
			IfModifiedSince:         ifModifiedSince,
			HeadOnly:                headOnly,
			NoCache:                 attempt > 1 && (opt.UseProxy || opt.CachingDisallowed),
			User:                    opt.User,
			Password:                opt.Password,
			OutputPath:              outputPath,
			SinkMode:                mode,
			HonorContentDisposition: opt.ContentDisposition,
			UseProxy:                opt.UseProxy,
			Headers:                 opt.Headers,
			Timer:                   timer,
		}
		if opt.Body != nil {
			txOpt.Body = bytes.NewReader(opt.Body)
			txOpt.BodyLen = int64(len(opt.Body))
			txOpt.ContentType = opt.ContentType
		}

		result, err := transaction.Execute(ctx, cc, txOpt)
		if err != nil {
			if code, ok := httperr.CodeOf(err); ok && httperr.IsRetryable(code, opt.RetryHostErr) {
				continue
			}
			return nil, err
		}

		switch result.Code {
		case httperr.NewLocation, httperr.NewLocationKeepPost:
			return &Result{Code: result.Code, NewLocation: result.NewLocation, Attempts: attempt, Metrics: timer.GetMetrics()}, nil

		case httperr.RetrUnneeded:
			return &Result{Code: httperr.RetrUnneeded, OutputPath: outputPath, Attempts: attempt, Metrics: timer.GetMetrics()}, nil

		case httperr.RetrFinished:
			if !successStatus(result.StatusCode) {
				if headOnly && (result.StatusCode == 500 || result.StatusCode == 501) {
					headOnly = false
					continue
				}
				return &Result{Code: httperr.WrongCode, OutputPath: outputPath, Attempts: attempt, Metrics: timer.GetMetrics()}, nil
			}

			if opt.Spider {
				return &Result{Code: httperr.OK, OutputPath: outputPath, Exists: true, Attempts: attempt, Metrics: timer.GetMetrics()}, nil
			}

			if headOnly {
				// A non-spider HEAD only establishes existence/metadata
				// (timestamping, content-disposition+always-rest); the
				// real entity still has to be fetched with GET.
				headOnly = false
				continue
			}

			switch {
			case result.ContentLength < 0:
				// unknown length: accept what we got
			case result.Len < result.ContentLength:
				restval += result.Len
				mode = sink.ModeAppend
				continue // connection lost partway through; retry from where it dropped
			}

			if opt.UseServerTimestamps && result.LastModified > 0 {
				sink.Touch(outputPath, result.LastModified)
			}
			return &Result{
				Code:          httperr.OK,
				OutputPath:    outputPath,
				Len:           result.Len,
				ContentLength: result.ContentLength,
				IsHTML:        sink.LooksLikeHTML(outputPath),
				Attempts:      attempt,
				Metrics:       timer.GetMetrics(),
			}, nil

		default:
			return &Result{Code: result.Code, OutputPath: outputPath, Attempts: attempt, Metrics: timer.GetMetrics()}, nil
		}
	}
}

func successStatus(status int) bool { return status >= 200 && status < 300 }

// decideInitialFile implements spec §4.11's "initial decisions": an
// explicit -O name is final; otherwise a name is synthesized from the
// URL, and a no-clobber collision short-circuits the whole loop.
func decideInitialFile(opt Options) (outputPath string, mode sink.Mode, early *Result) {
	outputPath = opt.OutputDocument
	if outputPath == "" {
		outputPath = filenameFromURL(opt.URL)
	}

	if opt.OutputDocument == "" && opt.NoClobber && sink.Exists(outputPath) {
		return outputPath, sink.ModeTruncate, &Result{
			Code:          httperr.OK,
			OutputPath:    outputPath,
			AlreadyExists: true,
			IsHTML:        sink.LooksLikeHTML(outputPath),
		}
	}

	mode = sink.ModeTruncate
	if opt.ResumePartial && sink.Exists(outputPath) {
		mode = sink.ModeAppend
	}
	return outputPath, mode, nil
}

func filenameFromURL(u engine.URL) string {
	base := path.Base(u.Path())
	if base == "" || base == "/" || base == "." {
		return "index.html"
	}
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return base
}

func statMtime(p string) (int64, bool) {
	info, err := os.Stat(p)
	if err != nil {
		return 0, false
	}
	return info.ModTime().Unix(), true
}
