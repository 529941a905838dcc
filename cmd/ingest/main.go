package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/wrapped-backend/internal/app"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/ingestion/exports"
	"github.com/yungbote/wrapped-backend/internal/services"
)

type fileList []string

func (l *fileList) String() string { return strings.Join(*l, ",") }
func (l *fileList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	var (
		files       fileList
		format      string
		email       string
		embed       bool
		startBatch  int
		report      string
		reembedUser string
		refresh     bool
		timeout     time.Duration
	)
	flag.Var(&files, "file", "export file to ingest (repeatable)")
	flag.StringVar(&format, "format", "auto", "export format: auto, chatgpt, claude, csv")
	flag.StringVar(&email, "email", "", "user email stamped on JSON exports and used as the default user")
	flag.BoolVar(&embed, "embed", true, "embed conversations after ingest (skipped without an OpenAI key)")
	flag.IntVar(&startBatch, "start-batch", 0, "resume embedding from this batch index")
	flag.StringVar(&report, "report", "", "print a report after ingest: wrapped or graph")
	flag.StringVar(&reembedUser, "reembed-user", "", "re-embed every stored conversation of this user")
	flag.BoolVar(&refresh, "refresh", false, "rebuild the analytics view and print its stats")
	flag.DurationVar(&timeout, "timeout", 2*time.Hour, "overall deadline")
	flag.Parse()

	if len(files) == 0 && reembedUser == "" && report == "" && !refresh {
		flag.Usage()
		os.Exit(2)
	}
	fmtKind, err := exports.ParseFormat(format)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(2)
	}

	a, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	svc := a.Services.Analytics

	user := reportUser(email, a.Cfg.Analytics.DefaultUserID)
	if embed && a.Services.Pipeline == nil {
		a.Log.Warn("embedding unavailable without an OpenAI key; storing rows only")
		embed = false
	}

	for _, path := range files {
		res, err := ingestFile(ctx, svc, path, fmtKind, email, embed, startBatch)
		if err != nil {
			a.Log.Error("ingest failed", "file", path, "error", err)
			a.Close()
			os.Exit(1)
		}
		printJSON(map[string]any{"file": path, "result": res})
		// Only the first file resumes mid-run; later files start fresh.
		startBatch = 0
	}

	if reembedUser != "" {
		res, err := svc.Reembed(ctx, reembedUser, startBatch)
		if err != nil {
			a.Log.Error("reembed failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		printJSON(map[string]any{"reembed": res})
	}

	switch strings.ToLower(strings.TrimSpace(report)) {
	case "":
	case "wrapped":
		out, err := svc.Wrapped(ctx, user, true)
		exitOn(a, "wrapped report", err)
		printJSON(out)
	case "graph":
		out, err := svc.Graph(ctx, user, 0)
		exitOn(a, "graph report", err)
		printJSON(out)
	default:
		fmt.Printf("unknown -report %q (want wrapped or graph)\n", report)
	}

	if refresh {
		v, err := svc.Refresh(ctx, "cli")
		exitOn(a, "refresh", err)
		printJSON(v.Stats)
	}
}

// reportUser names the user whose rows an email-less ingest stored.
func reportUser(email, configured string) string {
	if v := strings.TrimSpace(email); v != "" {
		return v
	}
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	return chatlog.DefaultUserID
}

func ingestFile(ctx context.Context, svc services.AnalyticsService, path string, format exports.Format, email string, embed bool, startBatch int) (services.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return services.IngestResult{}, err
	}
	defer f.Close()

	table, err := exports.Parse(f, path, format, exports.Options{Email: email})
	if err != nil {
		return services.IngestResult{}, err
	}
	return svc.Ingest(ctx, services.IngestInput{
		Table:         table,
		DefaultUserID: email,
		Embed:         embed,
		StartBatch:    startBatch,
	})
}

func exitOn(a *app.App, what string, err error) {
	if err == nil {
		return
	}
	a.Log.Error(what+" failed", "error", err)
	a.Close()
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
