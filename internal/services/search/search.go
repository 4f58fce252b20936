package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	yt "github.com/kkdai/youtube/v2"
	"github.com/ppalone/ytsearch"
	"github.com/samber/lo"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/IbrahimO9/discord-music-bot/internal/services/resolver"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
)

// ErrNoResults is returned when a query matches nothing playable
var ErrNoResults = errors.New("no results found")

// Result is the metadata needed to enqueue a track
type Result struct {
	Title     string
	URL       string
	Thumbnail string
	Channel   string
	Duration  time.Duration
}

// Searcher maps a free-text query or a YouTube URL to one playable result
type Searcher interface {
	Search(ctx context.Context, query string) (Result, error)
}

type (
	lookupFunc  func(ctx context.Context, videoID string) (Result, error)
	keywordFunc func(ctx context.Context, query string) ([]Result, error)
)

// Service resolves URLs through video metadata and keywords through the
// Data API when a key is configured, with a keyless scraper as fallback.
type Service struct {
	lookup  lookupFunc
	keyword []keywordFunc
	timeout time.Duration
	log     *logger.Logger
}

// NewService wires the available search providers. apiKey may be empty.
func NewService(ctx context.Context, apiKey string, timeout time.Duration, log *logger.Logger) (*Service, error) {
	client := &yt.Client{}
	s := &Service{
		lookup:  videoLookup(client),
		timeout: timeout,
		log:     log.WithComponent("search"),
	}

	if apiKey != "" {
		svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("creating YouTube Data API client: %w", err)
		}
		s.keyword = append(s.keyword, dataAPISearch(svc))
	}
	scraper := ytsearch.NewClient(nil)
	s.keyword = append(s.keyword, func(ctx context.Context, query string) ([]Result, error) {
		res, err := scraper.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		var out []Result
		for _, v := range res.Results {
			if v.VideoID == "" {
				continue
			}
			out = append(out, Result{
				Title:     v.Title,
				URL:       resolver.WatchURL(v.VideoID),
				Thumbnail: thumbnailURL(v.VideoID),
				Channel:   v.Channel,
			})
		}
		return out, nil
	})

	return s, nil
}

func (s *Service) Search(ctx context.Context, query string) (Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if id, ok := resolver.VideoIDFromURL(query); ok {
		res, err := s.lookup(ctx, id)
		if err != nil {
			// Metadata is cosmetic; the resolver decides later whether the video plays.
			s.log.Warn("video lookup failed, using bare URL", logger.Fields{"video_id": id, "error": err.Error()})
			return Result{Title: resolver.WatchURL(id), URL: resolver.WatchURL(id), Thumbnail: thumbnailURL(id)}, nil
		}
		return res, nil
	}

	var lastErr error
	for _, search := range s.keyword {
		results, err := search(ctx, query)
		if err != nil {
			lastErr = err
			s.log.Warn("keyword search failed", logger.Fields{"query": query, "error": err.Error()})
			continue
		}
		if len(results) > 0 {
			return results[0], nil
		}
	}

	if lastErr != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNoResults, lastErr)
	}
	return Result{}, ErrNoResults
}

func thumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

func videoLookup(client *yt.Client) lookupFunc {
	return func(ctx context.Context, videoID string) (Result, error) {
		video, err := client.GetVideoContext(ctx, videoID)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Title:     video.Title,
			URL:       resolver.WatchURL(video.ID),
			Thumbnail: thumbnailURL(video.ID),
			Channel:   video.Author,
			Duration:  video.Duration,
		}, nil
	}
}

func dataAPISearch(svc *youtube.Service) keywordFunc {
	return func(ctx context.Context, query string) ([]Result, error) {
		resp, err := svc.Search.List([]string{"id", "snippet"}).
			Q(query).
			Type("video").
			MaxResults(5).
			Context(ctx).
			Do()
		if err != nil {
			return nil, err
		}

		items := lo.Filter(resp.Items, func(item *youtube.SearchResult, _ int) bool {
			return item.Id != nil && item.Id.VideoId != "" && item.Snippet != nil
		})
		return lo.Map(items, func(item *youtube.SearchResult, _ int) Result {
			thumb := thumbnailURL(item.Id.VideoId)
			if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
				thumb = item.Snippet.Thumbnails.High.Url
			}
			return Result{
				Title:     item.Snippet.Title,
				URL:       resolver.WatchURL(item.Id.VideoId),
				Thumbnail: thumb,
				Channel:   item.Snippet.ChannelTitle,
			}
		}), nil
	}
}
