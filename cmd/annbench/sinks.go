package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/vecbench/blobstore"
	"github.com/hupe1980/vecbench/blobstore/minio"
	"github.com/hupe1980/vecbench/blobstore/s3"
	"github.com/hupe1980/vecbench/codec"
	"github.com/hupe1980/vecbench/config"
	"github.com/hupe1980/vecbench/report"
	ddbsink "github.com/hupe1980/vecbench/report/dynamodb"
	"github.com/hupe1980/vecbench/report/sqlite"
	"github.com/hupe1980/vecbench/resource"
)

// blobPrefix marks a baseline stored in the configured blob store.
const blobPrefix = "blob:"

// openBlobStore returns the configured artifact store, or nil when none is configured.
func openBlobStore(ctx context.Context, cfg config.BlobConfig) (blobstore.Store, error) {
	switch cfg.Kind {
	case "":
		return nil, nil
	case "local":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: blob.path is required for local storage", config.ErrInvalidConfig)
		}
		return blobstore.NewLocalStore(cfg.Path), nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return s3.NewStore(awss3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
	case "minio":
		client, err := minio.NewClient(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure)
		if err != nil {
			return nil, err
		}
		return minio.NewStore(client, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("%w: unknown blob kind %q", config.ErrInvalidConfig, cfg.Kind)
	}
}

// openSinks opens every configured report sink. The returned sink owns
// them; closing it closes all of them.
func openSinks(ctx context.Context, cfg *config.Config, store blobstore.Store, sessionID string, rc *resource.Controller) (report.Sink, error) {
	c, ok := codec.ByName(cfg.Report.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", config.ErrInvalidConfig, cfg.Report.Codec)
	}

	var sinks report.MultiSink
	fail := func(err error) (report.Sink, error) {
		return nil, errors.Join(err, sinks.Close())
	}

	if cfg.Report.CSV != "" {
		s, err := report.CreateCSVFile(cfg.Report.CSV)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Report.JSONL != "" {
		s, err := report.CreateJSONLFile(cfg.Report.JSONL, c)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Report.SQLite != "" {
		s, err := sqlite.Open(cfg.Report.SQLite)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Report.DynamoDBTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to load aws config: %w", err))
		}
		sinks = append(sinks, ddbsink.NewSink(dynamodb.NewFromConfig(awsCfg), cfg.Report.DynamoDBTable))
	}
	if store != nil {
		sinks = append(sinks, report.NewBlobSink(store, sessionID, func(o *report.BlobSinkOptions) {
			o.Compress = cfg.Report.Blob.Compress
			o.Codec = c
			o.Controller = rc
		}))
	}
	return sinks, nil
}

// loadBaseline reads the baseline records. Names prefixed with "blob:" are
// read from store, everything else from the local filesystem. A blob name
// ending in "/" selects every report under that prefix.
func loadBaseline(ctx context.Context, cfg *config.Config, store blobstore.Store) ([]report.RunRecord, error) {
	c, ok := codec.ByName(cfg.Report.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", config.ErrInvalidConfig, cfg.Report.Codec)
	}
	name, fromBlob := strings.CutPrefix(cfg.Report.Baseline, blobPrefix)
	if !fromBlob {
		return report.LoadJSONLFile(name, c)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: baseline %q needs a blob store", config.ErrInvalidConfig, cfg.Report.Baseline)
	}
	if strings.HasSuffix(name, "/") {
		return report.LoadJSONLBlobs(ctx, store, name, c)
	}
	return report.LoadJSONLBlob(ctx, store, name, c)
}
