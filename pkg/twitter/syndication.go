package twitter

import (
	"sort"

	"github.com/iconidentify/gifstash/internal/domain"
)

// syndicationResponse is the subset of the syndication payload this
// package reads. All fields are optional upstream; missing arrays decode
// to nil and the strategies below tolerate that.
type syndicationResponse struct {
	MediaDetails []mediaDetail `json:"mediaDetails"`
	Video        struct {
		Variants []struct {
			Type string `json:"type"`
			Src  string `json:"src"`
		} `json:"variants"`
		Poster     string `json:"poster"`
		DurationMS int    `json:"durationMs"`
	} `json:"video"`
	Photos []struct {
		URL                string `json:"url"`
		AccessibilityLabel string `json:"accessibilityLabel"`
	} `json:"photos"`
}

type mediaDetail struct {
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	ExtAltText    string `json:"ext_alt_text"`
	VideoInfo     struct {
		DurationMillis int `json:"duration_millis"`
		Variants       []struct {
			Bitrate     int    `json:"bitrate"`
			ContentType string `json:"content_type"`
			URL         string `json:"url"`
		} `json:"variants"`
	} `json:"video_info"`
}

// selectMedia maps a raw syndication payload to a typed extraction. The
// fallback chain runs as an ordered list of strategies: mediaDetails,
// then the top-level video field, then photos for the thumbnail only.
// One over-long entry vetoes the entire tweet.
func selectMedia(syn *syndicationResponse, maxClipMillis int) (*Extraction, error) {
	if err := checkDurations(syn, maxClipMillis); err != nil {
		return nil, err
	}

	out := fromMediaDetails(syn)
	if out == nil {
		out = fromVideoField(syn)
	}
	if out == nil {
		return nil, domain.ErrNoVideoFound
	}

	if out.Thumbnail == "" && len(syn.Photos) > 0 {
		out.Thumbnail = syn.Photos[0].URL
	}
	return out, nil
}

// checkDurations enforces the clip ceiling as a hard rule across every
// video-type entry, not a per-entry filter.
func checkDurations(syn *syndicationResponse, maxClipMillis int) error {
	for _, md := range syn.MediaDetails {
		if md.Type != "video" && md.Type != "animated_gif" {
			continue
		}
		if md.VideoInfo.DurationMillis > maxClipMillis {
			return domain.ErrClipTooLong
		}
	}
	if syn.Video.DurationMS > maxClipMillis {
		return domain.ErrClipTooLong
	}
	return nil
}

func fromMediaDetails(syn *syndicationResponse) *Extraction {
	for _, md := range syn.MediaDetails {
		if md.Type != "video" && md.Type != "animated_gif" {
			continue
		}

		type variant struct {
			url     string
			bitrate int
		}
		var mp4s []variant
		for _, v := range md.VideoInfo.Variants {
			if v.ContentType == "video/mp4" {
				mp4s = append(mp4s, variant{url: v.URL, bitrate: v.Bitrate})
			}
		}
		if len(mp4s) == 0 {
			continue
		}

		// Highest bitrate first; stable sort keeps encounter order on ties.
		sort.SliceStable(mp4s, func(i, j int) bool {
			return mp4s[i].bitrate > mp4s[j].bitrate
		})

		return &Extraction{
			VideoURL:  mp4s[0].url,
			Thumbnail: md.MediaURLHTTPS,
			Title:     md.ExtAltText,
			Bitrate:   mp4s[0].bitrate,
		}
	}
	return nil
}

func fromVideoField(syn *syndicationResponse) *Extraction {
	var urls []string
	for _, v := range syn.Video.Variants {
		if v.Type == "video/mp4" {
			urls = append(urls, v.Src)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	// This shape carries no bitrates; encounter order is the upstream
	// preference order.
	return &Extraction{
		VideoURL:  urls[0],
		Thumbnail: syn.Video.Poster,
	}
}
