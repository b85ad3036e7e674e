// Package s3 implements blobstore.Store on Amazon S3.
//
// Uploads go through the SDK transfer manager so large reports are sent as
// multipart uploads; S3 makes a completed object visible atomically.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "annbench/")
package s3
