package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/seenimoa/stockpulse/internal/infra"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// Dataset names under the object-store layout.
const (
	DatasetPrices       = "prices"
	DatasetFundamentals = "fundamentals"
	DatasetFeatures     = "features"
)

// S3API is the slice of the S3 client the store uses. Satisfied by
// *s3.Client and by test fakes.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store is a TimeSeriesStore on an S3-compatible bucket (S3 proper or R2).
// Each monthly partition is one JSONL object; a write reads the partition,
// merges by date keeping the newest row, sorts, and overwrites the object.
type S3Store struct {
	client  S3API
	bucket  string
	limiter *infra.RateLimiter
}

// NewS3Store wraps an S3 client. limiter may be nil to run unpaced.
func NewS3Store(client S3API, bucket string, limiter *infra.RateLimiter) *S3Store {
	return &S3Store{client: client, bucket: bucket, limiter: limiter}
}

// Key builds the object key for one monthly partition:
// {dataset}/v1/{TICKER}/{YYYY}/{MM}/data.jsonl
func Key(dataset, ticker string, year, month int) string {
	return fmt.Sprintf("%s/v1/%s/%04d/%02d/data.jsonl", dataset, strings.ToUpper(ticker), year, month)
}

func (s *S3Store) ReadPrices(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	var out []models.PriceBar
	err := s.readRange(ctx, DatasetPrices, ticker, start, end, func(line []byte) (time.Time, error) {
		var b models.PriceBar
		if err := json.Unmarshal(line, &b); err != nil {
			return time.Time{}, err
		}
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
		return b.Date, nil
	})
	return out, err
}

func (s *S3Store) WritePrices(ctx context.Context, ticker string, bars []models.PriceBar) (int, error) {
	return writePartitioned(ctx, s, DatasetPrices, ticker, bars,
		func(b models.PriceBar) time.Time { return b.Date })
}

// ReadFundamentals scans a wide fixed range; fundamentals volumes are tiny
// and the partition walk is cheap.
func (s *S3Store) ReadFundamentals(ctx context.Context, ticker string) ([]models.FundamentalPeriod, error) {
	start := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := utils.Day(time.Now().UTC())
	var out []models.FundamentalPeriod
	err := s.readRange(ctx, DatasetFundamentals, ticker, start, end, func(line []byte) (time.Time, error) {
		var p models.FundamentalPeriod
		if err := json.Unmarshal(line, &p); err != nil {
			return time.Time{}, err
		}
		out = append(out, p)
		return p.PeriodEnd, nil
	})
	return out, err
}

func (s *S3Store) WriteFundamentals(ctx context.Context, ticker string, periods []models.FundamentalPeriod) (int, error) {
	return writePartitioned(ctx, s, DatasetFundamentals, ticker, periods,
		func(p models.FundamentalPeriod) time.Time { return p.PeriodEnd })
}

func (s *S3Store) ReadFeatures(ctx context.Context, ticker string, start, end time.Time) ([]models.FeatureRow, error) {
	var out []models.FeatureRow
	err := s.readRange(ctx, DatasetFeatures, ticker, start, end, func(line []byte) (time.Time, error) {
		var f models.FeatureRow
		if err := json.Unmarshal(line, &f); err != nil {
			return time.Time{}, err
		}
		if !f.Date.Before(start) && !f.Date.After(end) {
			out = append(out, f)
		}
		return f.Date, nil
	})
	return out, err
}

func (s *S3Store) WriteFeatures(ctx context.Context, ticker string, rows []models.FeatureRow) (int, error) {
	return writePartitioned(ctx, s, DatasetFeatures, ticker, rows,
		func(f models.FeatureRow) time.Time { return f.Date })
}

// readRange walks the monthly partitions covering [start, end] and feeds
// every line to decode. Missing partitions are fine; decode errors are not.
func (s *S3Store) readRange(ctx context.Context, dataset, ticker string, start, end time.Time, decode func([]byte) (time.Time, error)) error {
	for _, ym := range utils.MonthsBetween(start, end) {
		raw, ok, err := s.getObject(ctx, Key(dataset, ticker, ym[0], ym[1]))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, line := range bytes.Split(raw, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if _, err := decode(line); err != nil {
				return fmt.Errorf("decode %s partition %s %04d-%02d: %w", dataset, ticker, ym[0], ym[1], err)
			}
		}
	}
	return nil
}

// writePartitioned groups rows by month and merges each group into its
// partition. The merge keeps the incoming row when dates collide.
func writePartitioned[T any](ctx context.Context, s *S3Store, dataset, ticker string, rows []T, dateOf func(T) time.Time) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	groups := make(map[[2]int][]T)
	for _, row := range rows {
		d := dateOf(row)
		gk := [2]int{d.Year(), int(d.Month())}
		groups[gk] = append(groups[gk], row)
	}

	written := 0
	for gk, group := range groups {
		key := Key(dataset, ticker, gk[0], gk[1])
		raw, ok, err := s.getObject(ctx, key)
		if err != nil {
			return written, err
		}

		merged := make(map[string]T)
		if ok {
			for _, line := range bytes.Split(raw, []byte("\n")) {
				if len(bytes.TrimSpace(line)) == 0 {
					continue
				}
				var existing T
				if err := json.Unmarshal(line, &existing); err != nil {
					return written, fmt.Errorf("decode existing %s: %w", key, err)
				}
				merged[dateOf(existing).Format(time.RFC3339)] = existing
			}
		}
		for _, row := range group {
			merged[dateOf(row).Format(time.RFC3339)] = row
		}

		flat := make([]T, 0, len(merged))
		for _, row := range merged {
			flat = append(flat, row)
		}
		sort.Slice(flat, func(i, j int) bool { return dateOf(flat[i]).Before(dateOf(flat[j])) })

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, row := range flat {
			if err := enc.Encode(row); err != nil {
				return written, fmt.Errorf("encode %s: %w", key, err)
			}
		}
		if err := s.putObject(ctx, key, buf.Bytes()); err != nil {
			return written, err
		}
		written += len(group)
	}
	return written, nil
}

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.wait(ctx); err != nil {
		return nil, false, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, true, nil
}

func (s *S3Store) putObject(ctx context.Context, key string, body []byte) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	return nil
}

func (s *S3Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}
