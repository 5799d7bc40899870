//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"runtime"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/hwpmu/accessd/internal/accesslog"
	"github.com/hwpmu/accessd/internal/bootstrap"
	"github.com/hwpmu/accessd/internal/cpuid"
	"github.com/hwpmu/accessd/internal/dispatcher"
	"github.com/hwpmu/accessd/internal/lock"
	"github.com/hwpmu/accessd/internal/pcitable"
	"github.com/hwpmu/accessd/internal/regio"
	"github.com/hwpmu/accessd/internal/supervisor"
)

const usage string = `accessd privileged register-access broker

accessd is a privileged daemon mediating access to x86 model-specific
registers and uncore performance-monitoring PCI configuration space on
behalf of a single unprivileged client per instance, behind a
per-microarchitecture register allow-list.
`

var (
	version  string
	commitId string
	builtAt  string
)

// connID is a monotonically increasing counter tagging each connection's
// log lines, since the broker no longer has a per-connection pid to tag
// them with the way the forking daemon this replaces did.
var connID uint64

func nextConnID() uint64 {
	connID++
	return connID
}

func serviceConnection(conn net.Conn, fs afero.Fs, ident cpuid.Identifier, lockChecker lock.Checker) {
	defer conn.Close()

	id := nextConnID()
	connLog := accesslog.WithConnection(fmt.Sprintf("%d", id))

	table := regio.New(fs)
	res, err := bootstrap.Run(fs, ident, pcitable.NewStatic(), uint32(runtime.NumCPU()), table)
	if err != nil {
		connLog.Errorf("bootstrap failed, dropping connection: %v", err)
		return
	}
	defer table.Close()

	svc := &dispatcher.ServiceContext{
		Selection:  res.Selection,
		PCIDevices: res.PCIDevices,
		Table:      table,
		Lock:       lockChecker,
		Log:        connLog,
	}

	if err := dispatcher.Serve(conn, svc); err != nil {
		connLog.Errorf("service process terminated: %v", err)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "accessd"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket-prefix",
			Value: "/var/run/accessd",
			Usage: "rendezvous socket path prefix (the actual socket is <prefix>-d)",
		},
		cli.StringFlag{
			Name:  "lock-file",
			Value: "",
			Usage: "path to the external access lock file, or empty to never lock (default: \"\")",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output (default: \"\")",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:  "once",
			Usage: "service a single connection then exit, for testing",
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("accessd\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n",
			c.App.Version, commitId, builtAt)
	}

	app.Before = func(ctx *cli.Context) error {
		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
			if err != nil {
				logrus.Fatalf("error opening log file %v: %v. Exiting ...", path, err)
				return err
			}
			logrus.SetOutput(f)
			log.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
			log.SetOutput(os.Stderr)
		}

		if ctx.GlobalString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch ctx.GlobalString("log-level") {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level option %q not recognized. Exiting ...", ctx.GlobalString("log-level"))
		}

		accesslog.SetLogger(logrus.StandardLogger())
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("initiating accessd ...")

		var lockChecker lock.Checker = lock.AlwaysAllowed{}
		if path := ctx.String("lock-file"); path != "" {
			lockChecker = lock.FileChecker{Fs: afero.NewOsFs(), Path: path}
		}

		// Mirrors the upstream daemon's startup-time "if (!lock_check())
		// stop_daemon()": refuse to even start listening while some other
		// tool holds the lock, rather than waiting for the first client to
		// find out. Every READ/WRITE still re-checks the lock per request,
		// since it may be acquired or released at any point while accessd
		// is running.
		if !lockChecker.Allowed() {
			return fmt.Errorf("access lock held, refusing to start")
		}

		fs := afero.NewOsFs()
		ident := cpuid.Native{}
		once := ctx.Bool("once")

		sup, err := supervisor.Listen(ctx.String("socket-prefix"), func(conn net.Conn) {
			serviceConnection(conn, fs, ident, lockChecker)
		})
		if err != nil {
			return fmt.Errorf("failed to start listening: %w", err)
		}

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Info("ready ...")

		if once {
			return sup.RunOnce()
		}
		return sup.Run()
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
