package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"sketchbook/internal/gateway/middleware"
	"sketchbook/internal/sketch/cli"
	"sketchbook/internal/sketch/config"
)

const SketchVersion = "0.1.0"

const usage = `Sketchbook client.

Without --project the built-in template is used where that makes sense.
The server and token come from the config file, SKETCH_SERVER and SKETCH_TOKEN.

Usage:
    sketch list [options]
    sketch addons [options]
    sketch show [options] [--project=<name>]
    sketch new <name> [options]
    sketch save <file> <path> --project=<name> [options]
    sketch run --project=<name> [options]
    sketch class create <class> --project=<name> [options]
    sketch class rename <class> <new_name> --project=<name> [options]
    sketch class delete <class> --project=<name> [options]
    sketch delete --project=<name> [options]
    sketch token --secret=<secret> [--issuer=<issuer>] [--subject=<subject>] [--ttl=<ttl>] [--save] [options]
    sketch -h | --help
    sketch --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --config=<path>        Client config file.
    --server=<url>         Gateway base url.
    --project=<name>       Project to work on.
    --http-only            Never open the websocket.
    --secret=<secret>      Gateway JWT secret.
    --issuer=<issuer>      Token issuer [default: sketchbook].
    --subject=<subject>    Token subject [default: sketch-cli].
    --ttl=<ttl>            Token lifetime [default: 720h].
    --save                 Store the token in the config file.
    -v --verbose           Log to stderr.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], SketchVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer glog.Flush()

	if verbose, _ := opts.Bool("--verbose"); verbose {
		_ = flag.Set("logtostderr", "true")
	} else {
		_ = flag.Set("stderrthreshold", "FATAL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := execute(ctx, opts, os.Stdout, os.Stderr)
	glog.Flush()
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, opts docopt.Opts, out, errOut io.Writer) int {
	path, _ := opts.String("--config")
	if path == "" {
		path = config.DefaultPath()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	cfg.ApplyEnv(os.Getenv)
	if server, _ := opts.String("--server"); server != "" {
		cfg.Server = server
	}
	if httpOnly, _ := opts.Bool("--http-only"); httpOnly {
		cfg.NoSocket = true
	}

	if token, _ := opts.Bool("token"); token {
		return issueToken(opts, loader, cfg, out, errOut)
	}

	if err := loader.EnsureClientID(cfg); err != nil {
		glog.Warningf("[cli]client id not saved: %v", err)
	}

	client, err := cli.Dial(ctx, cfg, nil, out, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer client.Close()

	project, _ := opts.String("--project")
	code := 0
	switch {
	case flagSet(opts, "list"):
		err = client.List(ctx)
	case flagSet(opts, "addons"):
		err = client.Addons(ctx)
	case flagSet(opts, "show"):
		err = client.Show(ctx, project)
	case flagSet(opts, "new"):
		name, _ := opts.String("<name>")
		err = client.New(ctx, name)
	case flagSet(opts, "save"):
		err = save(ctx, client, opts, project)
	case flagSet(opts, "run"):
		code, err = client.Run(ctx, project)
	case flagSet(opts, "class"):
		class, _ := opts.String("<class>")
		switch {
		case flagSet(opts, "create"):
			err = client.CreateClass(ctx, project, class)
		case flagSet(opts, "rename"):
			newName, _ := opts.String("<new_name>")
			err = client.RenameClass(ctx, project, class, newName)
		case flagSet(opts, "delete"):
			err = client.DeleteClass(ctx, project, class)
		}
	case flagSet(opts, "delete"):
		err = client.Delete(ctx, project)
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return cli.ExitCode(err)
	}
	return code
}

func flagSet(opts docopt.Opts, key string) bool {
	v, _ := opts.Bool(key)
	return v
}

// save reads the new source from path, or stdin when path is "-".
func save(ctx context.Context, client *cli.Client, opts docopt.Opts, project string) error {
	file, _ := opts.String("<file>")
	path, _ := opts.String("<path>")
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	return client.Save(ctx, project, file, string(data))
}

func issueToken(opts docopt.Opts, loader *config.Loader, cfg *config.Config, out, errOut io.Writer) int {
	secret, _ := opts.String("--secret")
	issuer, _ := opts.String("--issuer")
	subject, _ := opts.String("--subject")
	ttlText, _ := opts.String("--ttl")
	ttl, err := time.ParseDuration(ttlText)
	if err != nil {
		fmt.Fprintf(errOut, "bad --ttl: %v\n", err)
		return 2
	}
	token, err := middleware.IssueToken(secret, issuer, subject, ttl)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if persist, _ := opts.Bool("--save"); persist {
		cfg.Token = token
		if err := loader.Save(cfg); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "token saved to %s\n", loader.GetPath())
		return 0
	}
	fmt.Fprintln(out, token)
	return 0
}
