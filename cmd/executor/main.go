package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fluxcompute/schedulerbackend/pkg/log"
	"github.com/fluxcompute/schedulerbackend/pkg/transport"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "executor",
	Short: "Reference executor for the standalone scheduler backend",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("driver", "127.0.0.1:7077", "Driver gRPC address to connect to")
	rootCmd.Flags().String("executor-id", "", "Executor identity; a random id is generated when empty")
	rootCmd.Flags().String("hostPort", "", "This executor's advertised host:port; defaults to a loopback placeholder")
	rootCmd.Flags().Int("cores", 4, "Number of cores this executor offers")

	cobra.OnInitialize(func() {
		logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
		logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	})
}

func run(cmd *cobra.Command, args []string) error {
	driverAddr, _ := cmd.Flags().GetString("driver")
	executorID, _ := cmd.Flags().GetString("executor-id")
	hostPort, _ := cmd.Flags().GetString("hostPort")
	cores, _ := cmd.Flags().GetInt("cores")

	if executorID == "" {
		executorID = uuid.NewString()
	}
	if hostPort == "" {
		hostPort = "127.0.0.1:7078"
	}

	ctx := context.Background()
	execLog := log.WithExecutorID(executorID)

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.MaxElapsedTime = 0 // retry forever; the process lifetime bounds it

	return backoff.Retry(func() error {
		err := runOnce(ctx, driverAddr, executorID, hostPort, cores)
		if err != nil {
			execLog.Warn().Err(err).Msg("connection to driver lost, reconnecting")
		}
		return err
	}, backoffPolicy)
}

func runOnce(ctx context.Context, driverAddr, executorID, hostPort string, cores int) error {
	execLog := log.WithExecutorID(executorID)

	cc, err := grpc.NewClient(driverAddr, append(
		[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		transport.DialOptions()...)...)
	if err != nil {
		return fmt.Errorf("executor: dialing driver: %w", err)
	}
	defer cc.Close()

	conn, err := transport.Dial(ctx, cc, driverAddr)
	if err != nil {
		return fmt.Errorf("executor: opening connect stream: %w", err)
	}

	if err := conn.Send(wire.RegisterExecutor{
		ExecutorID: executorID,
		HostPort:   hostPort,
		Cores:      cores,
	}); err != nil {
		return fmt.Errorf("executor: sending RegisterExecutor: %w", err)
	}

	for {
		msg, err := conn.Recv()
		if err != nil {
			if err == io.EOF {
				execLog.Info().Msg("driver closed the stream")
				return nil
			}
			return fmt.Errorf("executor: receiving from driver: %w", err)
		}

		switch m := msg.(type) {
		case wire.RegisteredExecutor:
			execLog.Info().Interface("properties", m.Properties).Msg("registered with driver")
		case wire.RegisterExecutorFailed:
			return fmt.Errorf("executor: registration rejected: %s", m.Reason)
		case wire.LaunchTask:
			go execute(conn, executorID, m.Task)
		default:
			execLog.Warn().Str("type", fmt.Sprintf("%T", m)).Msg("ignoring unexpected message from driver")
		}
	}
}

// execute simulates running task and reports its lifecycle back to the
// driver. A real executor would hand the payload to whatever runs actual
// work; this one only proves the round trip.
func execute(conn *transport.Conn, executorID string, task wire.TaskDescription) {
	taskLog := log.WithTaskID(task.TaskID)

	send := func(state wire.TaskState) {
		if err := conn.Send(wire.StatusUpdate{
			ExecutorID: executorID,
			TaskID:     task.TaskID,
			State:      state,
		}); err != nil {
			taskLog.Error().Err(err).Msg("failed to send status update")
		}
	}

	send(wire.TaskLaunching)
	send(wire.TaskRunning)
	time.Sleep(100 * time.Millisecond)
	send(wire.TaskFinished)
}
