package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"thai-lotto-bot/internal/config"
	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"
	"thai-lotto-bot/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const statusSuccess = "success"

// HTTPStatusError 非200响应
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP request failed with status: %d", e.StatusCode)
}

// Client 开奖结果接口客户端
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	retryCount int
	retryDelay time.Duration
	log        *logrus.Entry
}

// NewClient 创建新的API客户端
func NewClient(cfg *config.API) *Client {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(limit, 1),
		baseURL:    cfg.URL,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		log:        logger.WithComponent("api"),
	}
}

// FetchDraws 获取最近 limit 期开奖数据，失败时指数退避重试
func (c *Client) FetchDraws(ctx context.Context, limit int) (*database.APIResponse, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var resp *database.APIResponse
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			c.log.Warnf("API request retry attempt %d/%d", attempt-1, c.retryCount)
		}
		r, err := c.makeRequest(ctx, u.String())
		if err != nil {
			metrics.RecordFeedRequest("error")
			return err
		}
		metrics.RecordFeedRequest("success")
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return nil, fmt.Errorf("failed to fetch draws after %d attempts: %w", attempt, err)
	}
	return resp, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.retryDelay > 0 {
		b.InitialInterval = c.retryDelay
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retryCount)), ctx)
}

// makeRequest 执行HTTP请求
func (c *Client) makeRequest(ctx context.Context, target string) (*database.APIResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("rate limiter error: %w", err))
	}

	c.log.Debugf("Making API request to: %s", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode}
		// 4xx 不重试（429 除外）
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResponse database.APIResponse
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
	}

	if apiResponse.Status != statusSuccess {
		return nil, backoff.Permanent(fmt.Errorf("API returned error message: %s", apiResponse.Message))
	}

	c.log.Debugf("API request successful, got %d records", len(apiResponse.Data))
	return &apiResponse, nil
}

// ConvertAPIData 转换接口数据为开奖记录并校验
func ConvertAPIData(data database.APIDrawData) (*database.DrawRecord, error) {
	date, err := database.ParseDate(data.Date)
	if err != nil {
		return nil, err
	}

	record, err := database.NewDrawRecord(date, data.FirstPrize, data.ThreeFront, data.ThreeBack, data.Last2)
	if err != nil {
		return nil, fmt.Errorf("invalid draw %s: %w", data.Date, err)
	}
	return record, nil
}

// FetchLatestDraw 获取并校验最新一期开奖
func (c *Client) FetchLatestDraw(ctx context.Context) (*database.DrawRecord, error) {
	resp, err := c.FetchDraws(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no data returned from API")
	}

	record, err := ConvertAPIData(resp.Data[0])
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"draw_date": database.FormatDate(record.DrawDate),
		"last2":     record.Last2,
	}).Debug("Latest draw validated")
	return record, nil
}

// GetHistoricalData 获取历史开奖，无法转换的记录跳过
func (c *Client) GetHistoricalData(ctx context.Context, limit int) ([]database.DrawRecord, error) {
	resp, err := c.FetchDraws(ctx, limit)
	if err != nil {
		return nil, err
	}

	var records []database.DrawRecord
	for _, data := range resp.Data {
		record, err := ConvertAPIData(data)
		if err != nil {
			c.log.Warnf("Failed to convert API data: %v", err)
			continue
		}
		records = append(records, *record)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no valid data could be converted")
	}

	c.log.Infof("Retrieved %d historical draws", len(records))
	return records, nil
}

// HealthCheck 检查API健康状态
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.FetchDraws(ctx, 1); err != nil {
		return fmt.Errorf("API health check failed: %w", err)
	}

	c.log.Debug("API health check passed")
	return nil
}

// GetAPIStats 获取API统计信息
func (c *Client) GetAPIStats() map[string]interface{} {
	return map[string]interface{}{
		"base_url":    c.baseURL,
		"timeout":     c.httpClient.Timeout,
		"retry_count": c.retryCount,
		"retry_delay": c.retryDelay,
		"rate_limit":  float64(c.limiter.Limit()),
	}
}
