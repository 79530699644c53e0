package services

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/fetch"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/storage"
)

// DefaultProbeSuffixes are sub-resource names commonly exposed by real-estate feeds.
var DefaultProbeSuffixes = []string{
	"blocks", "buildings", "complexes", "projects", "developers",
	"apartments", "flats", "offers", "regions", "cities", "districts", "metro",
}

// DefaultRegionParams are query parameters tried when looking for region filtering.
var DefaultRegionParams = []string{"region", "city", "region_id", "city_id"}

// regionRootKeys are root keys whose presence means the feed is already region-scoped.
var regionRootKeys = []string{"region", "region_id", "regionId", "city", "city_id", "cityId", "locality"}

// Region detection methods.
const (
	RegionMethodRootKey    = "root_key"
	RegionMethodQueryParam = "query_param"
)

const (
	defaultPageParam = "page"
	maxEmbeddedURLs  = 20

	// minProbeBodyBytes rejects "{}", "[]" and similar placeholders.
	minProbeBodyBytes = 3
)

// staticExtensions mark embedded URLs that point at assets rather than data.
var staticExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".pdf": true, ".css": true, ".js": true, ".ico": true, ".mp4": true, ".zip": true,
}

// DiscoveryOptions bounds one discovery run.
type DiscoveryOptions struct {
	MaxPages      int
	ProbeEntities bool
	DetectRegion  bool
	ProbeSuffixes []string
	RegionParams  []string
	PageParam     string
}

// DefaultDiscoveryOptions returns the options used when none are configured.
func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{
		MaxPages:      5,
		ProbeEntities: true,
		DetectRegion:  true,
		ProbeSuffixes: DefaultProbeSuffixes,
		RegionParams:  DefaultRegionParams,
		PageParam:     defaultPageParam,
	}
}

// EndpointDiscovery crawls a feed starting from its primary URL.
type EndpointDiscovery interface {
	// Discover never fails because of a single endpoint: fetch, status and
	// decode failures are recorded in the manifest. An error is returned only
	// when ctx ends, together with the manifest collected so far.
	Discover(ctx context.Context, primaryURL string, opts DiscoveryOptions) (*models.DiscoveryManifest, error)
}

type endpointDiscovery struct {
	fetcher fetch.Fetcher
	store   storage.Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewEndpointDiscovery creates a new EndpointDiscovery.
func NewEndpointDiscovery(fetcher fetch.Fetcher, store storage.Store, logger *zap.Logger) EndpointDiscovery {
	return &endpointDiscovery{
		fetcher: fetcher,
		store:   store,
		logger:  logger.Named("discovery"),
		now:     time.Now,
	}
}

// discoveryRun is the state of one Discover call.
type discoveryRun struct {
	manifest *models.DiscoveryManifest
	visited  map[string]bool
	opts     DiscoveryOptions
}

func normalizeDiscoveryOptions(opts DiscoveryOptions) DiscoveryOptions {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if len(opts.ProbeSuffixes) == 0 {
		opts.ProbeSuffixes = DefaultProbeSuffixes
	}
	if len(opts.RegionParams) == 0 {
		opts.RegionParams = DefaultRegionParams
	}
	if opts.PageParam == "" {
		opts.PageParam = defaultPageParam
	}
	return opts
}

func (d *endpointDiscovery) Discover(ctx context.Context, primaryURL string, opts DiscoveryOptions) (*models.DiscoveryManifest, error) {
	opts = normalizeDiscoveryOptions(opts)
	started := d.now()
	run := &discoveryRun{
		manifest: &models.DiscoveryManifest{
			RunID:          d.store.RunID(),
			PrimaryURL:     primaryURL,
			StartedAt:      started.UTC(),
			CollectedFiles: []models.CollectedFile{},
			Pagination:     models.PaginationInfo{Type: models.PaginationNone},
			EmbeddedURLs:   []string{},
			Probes:         []models.ProbeResult{},
			Errors:         []models.DiscoveryError{},
		},
		visited: make(map[string]bool),
		opts:    opts,
	}

	d.logger.Info("Starting discovery", zap.String("url", logging.SanitizeURL(primaryURL)))

	primary, ok := d.collect(ctx, run, primaryURL, models.LabelPrimary)
	if ok {
		run.manifest.Pagination = d.followPagination(ctx, run, primaryURL, primary)

		if opts.DetectRegion && ctx.Err() == nil {
			run.manifest.RegionFilter = d.detectRegion(ctx, run, primaryURL, primary)
		}
		if ctx.Err() == nil {
			d.collectEmbedded(ctx, run, primaryURL, primary)
		}
		if opts.ProbeEntities && ctx.Err() == nil {
			d.probeEntities(ctx, run, primaryURL)
		}
	}

	d.finalize(run.manifest, started)

	d.logger.Info("Discovery finished",
		zap.String("url", logging.SanitizeURL(primaryURL)),
		zap.Int("files", run.manifest.Totals.Files),
		zap.Int("pages", run.manifest.Totals.Pages),
		zap.Int("probes_accepted", run.manifest.Totals.ProbesAccepted),
		zap.Int("errors", run.manifest.Totals.Errors))

	if err := ctx.Err(); err != nil {
		return run.manifest, fmt.Errorf("discovery interrupted: %w", err)
	}
	return run.manifest, nil
}

// collect fetches, decodes and stores one URL. Failures are recorded and
// reported as ok=false.
func (d *endpointDiscovery) collect(ctx context.Context, run *discoveryRun, rawURL, label string) (any, bool) {
	run.visited[rawURL] = true

	result, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		run.manifest.AddError(rawURL, label, logging.SanitizeError(err))
		return nil, false
	}
	if !result.IsSuccess() {
		run.manifest.AddError(rawURL, label, fmt.Sprintf("http status %d", result.HTTPStatus))
		return nil, false
	}

	doc, err := jsonutil.Decode(result.Body)
	if err != nil {
		run.manifest.AddError(rawURL, label, err.Error())
		return nil, false
	}

	if err := d.persist(ctx, run, rawURL, label, result, doc); err != nil {
		return nil, false
	}
	return doc, true
}

// persist stores an accepted payload and appends it to the manifest.
func (d *endpointDiscovery) persist(ctx context.Context, run *discoveryRun, rawURL, label string, result *models.FetchResult, doc any) error {
	location, err := d.store.SaveRaw(ctx, label, result.Body)
	if err != nil {
		run.manifest.AddError(rawURL, label, fmt.Sprintf("store payload: %v", err))
		return err
	}
	run.manifest.CollectedFiles = append(run.manifest.CollectedFiles, models.CollectedFile{
		URL:            rawURL,
		Label:          label,
		Path:           location,
		HTTPStatus:     result.HTTPStatus,
		Bytes:          len(result.Body),
		ItemCount:      jsonutil.CountItems(doc),
		ElapsedSeconds: result.ElapsedSeconds,
	})
	return nil
}

// followPagination fetches further pages until max_pages, a failed fetch, or an empty page.
func (d *endpointDiscovery) followPagination(ctx context.Context, run *discoveryRun, primaryURL string, primary any) models.PaginationInfo {
	info := detectPagination(primary, primaryURL, run.opts.PageParam)
	info.PagesFetched = 1

	switch info.Type {
	case models.PaginationNextURL:
		next := info.NextURL
		for page := 2; page <= run.opts.MaxPages && next != "" && !run.visited[next]; page++ {
			if ctx.Err() != nil {
				break
			}
			doc, ok := d.collect(ctx, run, next, fmt.Sprintf("page_%d", page))
			if !ok || jsonutil.CountItems(doc) == 0 {
				break
			}
			info.PagesFetched++
			next, _ = findNextURL(doc, next)
		}

	case models.PaginationPageNumber, models.PaginationHasNext:
		if info.Type == models.PaginationHasNext && !info.HasNext {
			break
		}
		start := info.CurrentPage + 1
		if start < 2 {
			start = 2
		}
		for page := start; info.PagesFetched < run.opts.MaxPages; page++ {
			if info.Type == models.PaginationPageNumber && info.TotalPages > 0 && page > info.TotalPages {
				break
			}
			if ctx.Err() != nil {
				break
			}
			pageURL, err := withPage(primaryURL, info.PageParam, page)
			if err != nil || run.visited[pageURL] {
				break
			}
			doc, ok := d.collect(ctx, run, pageURL, fmt.Sprintf("page_%d", page))
			if !ok || jsonutil.CountItems(doc) == 0 {
				break
			}
			info.PagesFetched++
			if info.Type == models.PaginationHasNext {
				if hasNext, _, found := findHasNext(doc); found && !hasNext {
					break
				}
			}
		}
	}

	d.logger.Debug("Pagination followed",
		zap.String("type", info.Type),
		zap.Int("pages", info.PagesFetched))
	return info
}

// detectRegion looks for region-scoping root keys, then trial-appends region
// parameters and compares item counts with the baseline.
func (d *endpointDiscovery) detectRegion(ctx context.Context, run *discoveryRun, primaryURL string, primary any) models.RegionFilter {
	baseline := jsonutil.CountItems(primary)
	filter := models.RegionFilter{BaselineCount: baseline}

	if root, ok := primary.(map[string]any); ok {
		for _, key := range regionRootKeys {
			if v, present := root[key]; present && v != nil {
				filter.Detected = true
				filter.Method = RegionMethodRootKey
				filter.Key = key
				return filter
			}
		}
	}

	if baseline == 0 {
		return filter
	}

	for _, param := range run.opts.RegionParams {
		if ctx.Err() != nil {
			break
		}
		trialURL, err := withQueryParam(primaryURL, param, "1")
		if err != nil || run.visited[trialURL] {
			continue
		}
		run.visited[trialURL] = true
		label := "region_" + param

		result, err := d.fetcher.Fetch(ctx, trialURL)
		if err != nil {
			if ctx.Err() == nil {
				run.manifest.AddError(trialURL, label, logging.SanitizeError(err))
			}
			continue
		}
		if !result.IsSuccess() {
			run.manifest.AddError(trialURL, label, fmt.Sprintf("http status %d", result.HTTPStatus))
			continue
		}
		doc, err := jsonutil.Decode(result.Body)
		if err != nil {
			run.manifest.AddError(trialURL, label, err.Error())
			continue
		}
		if jsonutil.IsErrorPayload(doc) {
			continue
		}

		count := jsonutil.CountItems(doc)
		if count == baseline {
			continue
		}

		filter.Detected = true
		filter.Method = RegionMethodQueryParam
		filter.Key = param
		filter.FilteredCount = count
		_ = d.persist(ctx, run, trialURL, label, result, doc)
		return filter
	}
	return filter
}

// collectEmbedded follows same-host URLs found in root-level string values.
func (d *endpointDiscovery) collectEmbedded(ctx context.Context, run *discoveryRun, primaryURL string, primary any) {
	root, ok := primary.(map[string]any)
	if !ok {
		return
	}
	base, err := url.Parse(primaryURL)
	if err != nil {
		return
	}

	for _, key := range jsonutil.SortedKeys(root) {
		if len(run.manifest.EmbeddedURLs) >= maxEmbeddedURLs || ctx.Err() != nil {
			return
		}
		s, ok := root[key].(string)
		if !ok {
			continue
		}
		link, ok := embeddedLink(base, s)
		if !ok || run.visited[link] {
			continue
		}
		run.manifest.EmbeddedURLs = append(run.manifest.EmbeddedURLs, link)
		d.collect(ctx, run, link, "embedded_"+key)
	}
}

// embeddedLink accepts absolute http(s) URLs on the primary host that do not
// point at static assets.
func embeddedLink(base *url.URL, value string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	if !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return "", false
	}
	if staticExtensions[strings.ToLower(path.Ext(u.Path))] {
		return "", false
	}
	return u.String(), true
}

// probeEntities tries each suffix under the primary URL's path and keeps only
// responses that look like real data. Every attempt is audited in Probes;
// transport, status and decode failures are also recorded as errors.
func (d *endpointDiscovery) probeEntities(ctx context.Context, run *discoveryRun, primaryURL string) {
	for _, suffix := range run.opts.ProbeSuffixes {
		if ctx.Err() != nil {
			return
		}
		probeURL, err := probeURLFor(primaryURL, suffix)
		if err != nil || run.visited[probeURL] {
			continue
		}
		run.visited[probeURL] = true

		probe := d.probe(ctx, run, probeURL, suffix)
		run.manifest.Probes = append(run.manifest.Probes, probe)
	}
}

func (d *endpointDiscovery) probe(ctx context.Context, run *discoveryRun, probeURL, suffix string) models.ProbeResult {
	probe := models.ProbeResult{URL: probeURL, Suffix: suffix}
	label := "probe_" + suffix

	result, err := d.fetcher.Fetch(ctx, probeURL)
	if result != nil {
		probe.HTTPStatus = result.HTTPStatus
	}
	if err != nil {
		probe.Reason = logging.SanitizeError(err)
		if ctx.Err() == nil {
			run.manifest.AddError(probeURL, label, probe.Reason)
		}
		return probe
	}
	if !result.IsSuccess() {
		probe.Reason = fmt.Sprintf("http status %d", result.HTTPStatus)
		run.manifest.AddError(probeURL, label, probe.Reason)
		return probe
	}
	if len(bytes.TrimSpace(result.Body)) < minProbeBodyBytes {
		probe.Reason = "empty body"
		return probe
	}
	doc, err := jsonutil.Decode(result.Body)
	if err != nil {
		probe.Reason = "not json"
		run.manifest.AddError(probeURL, label, err.Error())
		return probe
	}
	if jsonutil.IsErrorPayload(doc) {
		probe.Reason = "error payload"
		return probe
	}
	if isEmptyContainer(doc) {
		probe.Reason = "no data"
		return probe
	}

	if err := d.persist(ctx, run, probeURL, label, result, doc); err != nil {
		probe.Reason = "store failed"
		return probe
	}
	probe.Accepted = true
	return probe
}

// probeURLFor appends suffix to the primary URL path, keeping its query.
func probeURLFor(primaryURL, suffix string) (string, error) {
	u, err := url.Parse(primaryURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(suffix, "/")
	u.RawPath = ""
	return u.String(), nil
}

func isEmptyContainer(doc any) bool {
	switch t := doc.(type) {
	case []any:
		return len(t) == 0
	case map[string]any:
		if len(t) == 0 {
			return true
		}
		if key := jsonutil.ItemsKey(t); key == "" {
			for _, k := range []string{"items", "data", "results"} {
				if arr, ok := t[k].([]any); ok && len(arr) == 0 {
					return true
				}
			}
		}
	case nil:
		return true
	}
	return false
}

func (d *endpointDiscovery) finalize(m *models.DiscoveryManifest, started time.Time) {
	finished := d.now()
	m.FinishedAt = finished.UTC()

	totals := models.ManifestTotals{
		Files:          len(m.CollectedFiles),
		Pages:          m.Pagination.PagesFetched,
		EmbeddedURLs:   len(m.EmbeddedURLs),
		Errors:         len(m.Errors),
		ElapsedSeconds: finished.Sub(started).Seconds(),
	}
	for _, f := range m.CollectedFiles {
		totals.Bytes += f.Bytes
	}
	for _, p := range m.Probes {
		if p.Accepted {
			totals.ProbesAccepted++
		}
	}
	m.Totals = totals
}
