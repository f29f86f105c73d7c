package app

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/broker"
	"github.com/border-inspection/tourgen/s3"
	"github.com/border-inspection/tourgen/version"
	"github.com/border-inspection/tourgen/worker"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewCmdWorker(logger logrus.FieldLogger, config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Generate the tours requested through the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.WithField("v", version.VERSION).Info("Starting worker...")
			return doWorker(logger, config)
		},
	}
	addTourFlags(cmd.Flags())
	cmd.Flags().String("out", "", "Output directory")
	cmd.Flags().String("metrics-addr", "", "Address of the health and metrics server")
	return cmd
}

func doWorker(logger logrus.FieldLogger, config *Config) error {
	if config.Worker.QueueURL == "" {
		return errors.New("worker.queue_url is not configured")
	}

	var g run.Group
	{
		w, cache, err := newWorker(logger, config)
		if err != nil {
			return err
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.WithError(err).Warn("Elevation cache could not be closed")
			}
		}()

		g.Add(func() error {
			w.Run()
			return nil
		}, func(error) {
			w.Stop()
		})

		cancel := make(chan struct{})
		g.Add(func() error {
			err := interrupt(cancel, w.Log)
			logger.Warn("Shutting down...")
			return err
		}, func(error) {
			close(cancel)
		})
	}
	{
		ln, err := net.Listen("tcp", config.Worker.MetricsAddr)
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")

		g.Add(func() error {
			mux := http.NewServeMux()

			// Health check.
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "OK")
			})

			// Prometheus metrics.
			mux.Handle("/metrics", promhttp.Handler())

			// Profiling data.
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

			return http.Serve(ln, mux)
		}, func(error) {
			ln.Close()
		})
	}

	return g.Run()
}

func newWorker(logger logrus.FieldLogger, config *Config) (*worker.Worker, io.Closer, error) {
	incomingJobs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tourgen",
		Name:      "incoming_jobs_total",
		Help:      "The total number of jobs received.",
	})
	if err := prometheus.Register(incomingJobs); err != nil {
		return nil, nil, err
	}

	var dynamodbClient dynamodbiface.DynamoDBAPI
	if config.Worker.RepositoryTable != "" {
		sess, err := awsSession(logger, config.AWS.DynamoDBProfile, config.AWS.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		dynamodbClient = dynamodb.New(sess)
	}

	var brClient *broker.Broker
	{
		sess, err := awsSession(logger, config.AWS.SQSProfile, config.AWS.SQSEndpoint)
		if err != nil {
			return nil, nil, err
		}
		sqsClient := sqs.New(sess)

		sess, err = awsSession(logger, config.AWS.SNSProfile, config.AWS.SNSEndpoint)
		if err != nil {
			return nil, nil, err
		}
		snsClient := sns.New(sess)

		brClient = broker.New(
			logger.WithField("component", "broker"),
			sqsClient, config.Worker.QueueURL,
			snsClient, config.Worker.ResultTopicARN, config.Worker.ErrorTopicARN,
			dynamodbClient, config.Worker.RepositoryTable,
			incomingJobs)
	}

	var s3Client s3.ObjectStorage
	{
		sess, err := awsSession(logger, config.AWS.S3Profile, config.AWS.S3Endpoint)
		if err != nil {
			return nil, nil, err
		}
		s3Client = s3.New(sess)
	}

	fs := afero.NewOsFs()
	provider, cache, err := elevationProvider(logger.WithField("component", "elevation"), config, fs)
	if err != nil {
		return nil, nil, err
	}

	w := worker.New(
		logger.WithField("component", "worker"),
		brClient,
		boundary.NewLoader(logger, fs, s3Client),
		provider,
		fs,
		s3Client,
		worker.Config{
			Tour:      config.Tour,
			Video:     config.Video,
			Output:    config.Output,
			OutputURI: config.Worker.OutputURI,
		})
	return w, cache, nil
}
