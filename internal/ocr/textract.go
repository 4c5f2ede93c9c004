package ocr

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/resilience"
)

// JobStatus is the state of an asynchronous OCR job.
type JobStatus string

// Job states reported by the OCR service.
const (
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
	JobPartial    JobStatus = "PARTIAL_SUCCESS"
)

// JobService runs asynchronous text detection over a stored document.
type JobService interface {
	StartJob(ctx context.Context, bucket, key string) (string, error)
	PollJob(ctx context.Context, jobID string) (JobStatus, error)
	FetchLines(ctx context.Context, jobID string) ([]string, error)
}

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	StartDocumentTextDetection(ctx context.Context, in *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, in *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

// Textract implements JobService on AWS Textract document text detection.
type Textract struct {
	api   TextractAPI
	retry resilience.RetryConfig
}

// NewTextract wraps a Textract client. Starting a job is retried on
// transient errors; polling and result paging are not.
func NewTextract(api TextractAPI, retry resilience.RetryConfig) *Textract {
	return &Textract{api: api, retry: retry}
}

// NewTextractFromConfig builds a Textract JobService from an AWS config.
func NewTextractFromConfig(cfg aws.Config, retry resilience.RetryConfig) *Textract {
	return NewTextract(textract.NewFromConfig(cfg), retry)
}

// StartJob starts text detection on s3://bucket/key and returns the job id.
func (t *Textract) StartJob(ctx context.Context, bucket, key string) (string, error) {
	out, err := resilience.DoVal(ctx, t.retry, func(ctx context.Context) (*textract.StartDocumentTextDetectionOutput, error) {
		return t.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
			DocumentLocation: &types.DocumentLocation{
				S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)},
			},
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "ocr: start textract job for %s", key)
	}
	id := aws.ToString(out.JobId)
	if id == "" {
		return "", eris.Errorf("ocr: textract returned no job id for %s", key)
	}
	zap.L().Debug("ocr: textract job started", zap.String("job_id", id), zap.String("key", key))
	return id, nil
}

// PollJob reads the job status.
func (t *Textract) PollJob(ctx context.Context, jobID string) (JobStatus, error) {
	out, err := t.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
		JobId:      aws.String(jobID),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return "", eris.Wrapf(err, "ocr: poll textract job %s", jobID)
	}
	return JobStatus(out.JobStatus), nil
}

// FetchLines pages through a finished job and returns its LINE blocks in
// document order.
func (t *Textract) FetchLines(ctx context.Context, jobID string) ([]string, error) {
	var lines []string
	var next *string
	for {
		out, err := t.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "ocr: fetch textract results %s", jobID)
		}
		for _, b := range out.Blocks {
			if b.BlockType == types.BlockTypeLine && b.Text != nil {
				lines = append(lines, aws.ToString(b.Text))
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return lines, nil
		}
		next = out.NextToken
	}
}

// JoinLines renders OCR lines as document text.
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
