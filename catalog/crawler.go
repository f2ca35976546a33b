// Package catalog acquires the product catalog. Crawler walks storefront
// listing pages with colly; LoadFile and Watch read exported catalogs.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-plant-storefront/config"
	"github.com/aluiziolira/go-plant-storefront/models"
	"github.com/aluiziolira/go-plant-storefront/parser"
	"github.com/aluiziolira/go-plant-storefront/pipeline"
)

// Crawler wraps the colly collector and retry logic for a storefront.
type Crawler struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	logger    *slog.Logger
	Metrics   *Metrics

	requestCount int64
	pageCount    int64
	errorCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int

	handlersOnce sync.Once
}

// NewCrawler builds a crawler configured from cfg.
func NewCrawler(cfg *config.Config, logger *slog.Logger) (*Crawler, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &Crawler{
		cfg:          cfg,
		collector:    collector,
		logger:       logger,
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	c.retry = newRetryManager(cfg, c.Metrics, logger)
	return c, nil
}

// SetTransport replaces the HTTP transport used for listing requests.
func (c *Crawler) SetTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Run crawls from the base URL and streams product cards through p.
func (c *Crawler) Run(ctx context.Context, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.retry.SetContext(ctx)
	c.configureHandlers(ctx, p)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			c.retry.Stop()
		case <-done:
		}
	}()

	if err := c.collector.Visit(c.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("initial visit: %w", err)
	}

	// A retry fires after the collector drained, so keep waiting until
	// neither side has work left.
	for {
		c.collector.Wait()
		if c.retry.Idle() {
			break
		}
		c.retry.Wait()
	}
	c.retry.Stop()

	result := &models.CrawlResult{
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorCount:   int(atomic.LoadInt64(&c.errorCount)),
		FailedURLs:   c.snapshotFailedURLs(),
		ErrorsByType: c.snapshotErrors(),
		RetryCount:   c.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&c.requestCount)),
		PageCount:    int(atomic.LoadInt64(&c.pageCount)),
	}

	if metrics := p.GetMetrics(); metrics != nil {
		if processed, ok := metrics["processed_products"].(int64); ok {
			result.TotalCount = int(processed)
		}
	}

	return result, nil
}

func (c *Crawler) configureHandlers(ctx context.Context, p *pipeline.Pipeline) {
	c.handlersOnce.Do(func() {
		c.collector.OnRequest(func(r *colly.Request) {
			if ctx.Err() != nil {
				r.Abort()
				return
			}
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&c.requestCount, 1)
			c.Metrics.IncRequest("started")
			if current%50 == 0 {
				c.logger.Debug("crawl request progress",
					slog.Int64("requests", current),
					slog.Int64("pages", atomic.LoadInt64(&c.pageCount)),
					slog.String("url", r.URL.String()),
				)
			}
		})

		c.collector.OnResponse(func(r *colly.Response) {
			c.Metrics.IncRequest("completed")
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				c.Metrics.ObserveDuration(time.Since(start))
			}
		})

		c.collector.OnError(func(r *colly.Response, err error) {
			atomic.AddInt64(&c.errorCount, 1)
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)
			category := errorTypeLabel(classified)

			c.mu.Lock()
			c.errorsByType[category]++
			c.mu.Unlock()

			target := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
			}
			c.logger.Error("listing request failed",
				slog.String("url", target),
				slog.String("category", category),
				slog.Any("error", err),
			)
			c.Metrics.IncError(category)

			var fe *FetchError
			retryable := !errors.As(classified, &fe) || fe.Retryable()
			if !retryable || r == nil || r.Request == nil || !c.retry.Schedule(target, r.Request.Retry) {
				c.mu.Lock()
				c.failedURLs = append(c.failedURLs, target)
				c.mu.Unlock()
			}
		})

		c.collector.OnHTML("article.product-card", func(e *colly.HTMLElement) {
			product := extractProduct(e)
			if product == nil {
				return
			}
			c.Metrics.IncProducts()
			if err := p.Process(product); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
				c.logger.Error("pipeline process error", slog.Any("error", err))
			}
		})

		c.collector.OnHTML("li.next a", func(e *colly.HTMLElement) {
			currentPage := atomic.AddInt64(&c.pageCount, 1)
			if currentPage >= int64(c.cfg.MaxPages) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			c.Metrics.IncPages()
			abs := e.Request.AbsoluteURL(e.Attr("href"))
			if err := c.collector.Visit(abs); err != nil && !errors.Is(err, colly.ErrAlreadyVisited) {
				c.logger.Debug("pagination visit failed", slog.String("url", abs), slog.Any("error", err))
			}
		})
	})
}

// extractProduct reads one listing card:
//
//	<article class="product-card" data-id=".." data-category=".." data-care=".."
//	         data-size=".." data-pet-friendly data-air-purifying
//	         data-created="2025-01-31" data-sold="12">
//	  <h3><a href="/plants/..">Name</a></h3>
//	  <p class="price">₹1,299</p> <span class="discount">20% off</span>
//	  <p class="rating" data-rating="4.5">  or  <p class="star-rating Four">
//	  <p class="availability">In stock (12 available)</p>
//	</article>
func extractProduct(e *colly.HTMLElement) *models.Product {
	name := strings.TrimSpace(e.ChildText("h3 a"))
	if name == "" {
		name = strings.TrimSpace(e.ChildAttr("h3 a", "title"))
	}
	href := e.ChildAttr("h3 a", "href")
	if name == "" || href == "" {
		return nil
	}
	productURL := e.Request.AbsoluteURL(href)

	id := strings.TrimSpace(e.Attr("data-id"))
	if id == "" {
		id = path.Base(strings.TrimSuffix(productURL, "/"))
	}

	price, err := parser.NormalizePrice(e.ChildText("p.price"))
	if err != nil {
		// Left at -1 so validation rejects the card.
		price = -1
	}

	ratingText := e.ChildAttr("p.rating", "data-rating")
	if ratingText == "" {
		if parts := strings.Fields(e.ChildAttr("p.star-rating", "class")); len(parts) > 1 {
			ratingText = parts[1]
		}
	}

	petValue, petPresent := e.DOM.Attr("data-pet-friendly")
	airValue, airPresent := e.DOM.Attr("data-air-purifying")

	return &models.Product{
		ID:           id,
		Name:         name,
		Category:     parser.NormalizeLabel(e.Attr("data-category")),
		Price:        price,
		Rating:       parser.RatingToNumeric(ratingText),
		Stock:        parser.StockFromAvailability(e.ChildText("p.availability")),
		Discount:     parser.NormalizeDiscount(e.ChildText("span.discount")),
		CareLevel:    parser.NormalizeLabel(e.Attr("data-care")),
		Size:         parser.NormalizeLabel(e.Attr("data-size")),
		PetFriendly:  parser.ParseFlag(petValue, petPresent),
		AirPurifying: parser.ParseFlag(airValue, airPresent),
		CreatedAt:    parseCreated(e.Attr("data-created")),
		SoldCount:    parseCount(e.Attr("data-sold")),
		URL:          productURL,
	}
}

func parseCreated(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (c *Crawler) snapshotFailedURLs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.failedURLs)
}

func (c *Crawler) snapshotErrors() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.errorsByType)
}

type retryManager struct {
	cfg     *config.Config
	metrics *Metrics
	logger  *slog.Logger
	ctx     context.Context

	mu           sync.Mutex
	attempts     map[string]int
	timers       map[string]*time.Timer
	totalRetries int
	stopped      bool

	// waiting counts scheduled retries that have not yet handed their
	// request back to the collector. idle is signalled when it reaches 0.
	waiting int
	idle    *sync.Cond
}

func newRetryManager(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *retryManager {
	rm := &retryManager{
		cfg:      cfg,
		attempts: make(map[string]int),
		timers:   make(map[string]*time.Timer),
		metrics:  metrics,
		logger:   logger,
		ctx:      context.Background(),
	}
	rm.idle = sync.NewCond(&rm.mu)
	return rm
}

// Schedule calls visit for url after a backoff. It reports false once the
// url has used its retries or the crawl is stopping.
func (rm *retryManager) Schedule(url string, visit func() error) bool {
	if rm.cfg.MaxRetries == 0 || url == "" {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	if timer, ok := rm.timers[url]; ok && timer.Stop() {
		rm.doneLocked()
	}
	rm.waiting++
	rm.timers[url] = time.AfterFunc(rm.backoff(attempt), func() {
		rm.fireRetry(url, visit)
	})
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if limit := rm.cfg.RetryBackoffMax; limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

func (rm *retryManager) fireRetry(url string, visit func() error) {
	rm.mu.Lock()
	delete(rm.timers, url)
	live := !rm.stopped && rm.ctx.Err() == nil
	rm.mu.Unlock()

	if live {
		if err := visit(); err != nil {
			rm.logger.Debug("retry visit failed", slog.String("url", url), slog.Any("error", err))
		}
	}

	rm.mu.Lock()
	rm.doneLocked()
	rm.mu.Unlock()
}

func (rm *retryManager) doneLocked() {
	rm.waiting--
	if rm.waiting == 0 {
		rm.idle.Broadcast()
	}
}

// Idle reports whether no retry is waiting on its timer.
func (rm *retryManager) Idle() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.waiting == 0
}

// Wait blocks until every scheduled retry has fired or been stopped.
func (rm *retryManager) Wait() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for rm.waiting > 0 {
		rm.idle.Wait()
	}
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for url, timer := range rm.timers {
		if timer.Stop() {
			rm.doneLocked()
		}
		delete(rm.timers, url)
	}
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
