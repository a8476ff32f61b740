package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pombredanne/bipio/bastion"
	"github.com/pombredanne/bipio/config"
	"github.com/pombredanne/bipio/engine"
	"github.com/pombredanne/bipio/pods/email"
	"github.com/pombredanne/bipio/pods/flow"
	"github.com/pombredanne/bipio/pods/timer"
	"github.com/pombredanne/bipio/pods/tweet"
	"github.com/pombredanne/bipio/pods/webhook"
	"github.com/pombredanne/bipio/server"
	"github.com/pombredanne/bipio/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bipiod",
	Short: "bipio channel invocation daemon",
	Long:  "bipiod loads the configured pods and serves channel invocation and rendering RPCs.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configPath)
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "bipio.yaml", "path to the daemon config")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error running bipiod: %v", err)
	}
}

// newPod maps a configured pod name onto its implementation. Pods are
// required infrastructure: an unknown name is a configuration error.
func newPod(name string) (engine.Pod, error) {
	switch name {
	case "webhook":
		return webhook.New(), nil
	case "email":
		return email.New(), nil
	case "flow":
		return flow.New(), nil
	case "timer":
		return timer.New(), nil
	case "tweet":
		return tweet.New(), nil
	default:
		return nil, fmt.Errorf("unknown pod %q", name)
	}
}

func run(configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st := store.New(cfg.StorePath)
	if err := st.Open(); err != nil {
		return err
	}
	defer st.Close()

	reg := engine.NewRegistry(logger)
	for _, pc := range cfg.Pods {
		pod, err := newPod(pc.Name)
		if err != nil {
			return err
		}
		if err := reg.Register(pod, pc.Config); err != nil {
			return err
		}
	}
	if err := reg.Init(st); err != nil {
		return err
	}

	jobs := bastion.New(logger, cfg.QueueSize)
	jobs.Handle(engine.JobUserStat, userStatHandler(logger, st))
	jobs.Start()
	defer jobs.Stop()

	invoker := engine.NewInvoker(logger, reg, jobs)

	g := gin.Default()
	server.New(logger, reg, st, invoker, cfg.Domain).Routes(g)

	logger.Info("bipiod up", "listen", cfg.Listen, "pods", len(cfg.Pods))
	return g.Run(cfg.Listen)
}

// userStatHandler bumps the named per-owner counter in the stats namespace.
func userStatHandler(logger *slog.Logger, st *store.Store) bastion.HandlerFunc {
	return func(job bastion.Job) error {
		ownerID, _ := job.Payload["owner_id"].(string)
		statType, _ := job.Payload["type"].(string)
		if ownerID == "" || statType == "" {
			return fmt.Errorf("user stat job missing owner_id or type")
		}

		ns, err := st.Namespace("stats")
		if err != nil {
			return err
		}
		key := ownerID + "/" + statType
		var count int
		if err := ns.Get(key, &count); err != nil {
			count = 0
		}
		count++
		if err := ns.Put(key, count); err != nil {
			return err
		}
		logger.Info("user stat", "owner", ownerID, "type", statType, "count", count)
		return nil
	}
}
