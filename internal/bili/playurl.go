package bili

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/duke-git/lancet/v2/slice"
)

// Quality ids the platform serves for DASH video streams. Higher is
// better. 125 and 126 are the HDR / Dolby Vision variants.
var allowedVideoQualities = []int{16, 32, 64, 80, 112, 116, 120, 125, 127}

var hdrVideoQualities = []int{125, 126}

// Hi-res lossless audio rendition, preferred over bandwidth ranking
// when present.
const hiResAudioID = 30251

// Rendition is one quality/codec variant of a video or audio stream.
type Rendition struct {
	ID        int    `json:"id"`
	Bandwidth int    `json:"bandwidth"`
	Codecs    string `json:"codecs"`
	BaseURL   string `json:"baseUrl"`
	// Some gateway responses use snake_case for the same field.
	BaseURLAlt string `json:"base_url"`
}

func (r Rendition) URL() string {
	if r.BaseURL != "" {
		return r.BaseURL
	}
	return r.BaseURLAlt
}

func (r Rendition) HDR() bool {
	return slice.Contain(hdrVideoQualities, r.ID)
}

// PlayInfo holds the DASH rendition lists of one video page.
type PlayInfo struct {
	Video []Rendition
	Audio []Rendition
}

type playURLData struct {
	Dash *struct {
		Video []Rendition `json:"video"`
		Audio []Rendition `json:"audio"`
	} `json:"dash"`
}

// ResolveStreams queries the playback-info endpoint for the DASH
// rendition lists of one video page.
func (c *Client) ResolveStreams(ctx context.Context, bvid string, cid int64) (*PlayInfo, error) {
	params := make(url.Values)
	params.Set("bvid", bvid)
	params.Set("cid", strconv.FormatInt(cid, 10))
	params.Set("qn", "0")
	params.Set("fnval", "4048")
	params.Set("fourk", "1")
	params.Set("fnver", "0")

	var data playURLData
	if err := c.getJSON(ctx, "/x/player/playurl", params, &data); err != nil {
		return nil, err
	}
	if data.Dash == nil {
		return nil, newError(ErrKindNoRendition, fmt.Sprintf("no dash streams for %s (cid %d)", bvid, cid))
	}
	return &PlayInfo{Video: data.Dash.Video, Audio: data.Dash.Audio}, nil
}

// SelectStreams picks the best video and audio rendition. Video: highest
// quality id, HDR variants excluded unless downloadHDR, ties broken by
// bandwidth. Audio: the hi-res rendition when present, else highest
// bandwidth. The two axes are independent on this platform.
func SelectStreams(info *PlayInfo, downloadHDR bool) (video, audio Rendition, err error) {
	candidates := make([]Rendition, 0, len(info.Video))
	for _, v := range info.Video {
		if v.URL() == "" {
			continue
		}
		if !downloadHDR && v.HDR() {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return video, audio, newError(ErrKindNoRendition, "no playable video rendition")
	}

	// Prefer ids from the known quality ladder; fall back to the raw id
	// ordering for ids the ladder does not know about.
	known := slice.Filter(candidates, func(_ int, r Rendition) bool {
		return slice.Contain(allowedVideoQualities, r.ID)
	})
	if len(known) > 0 {
		candidates = known
	}
	video = candidates[0]
	for _, v := range candidates[1:] {
		if v.ID > video.ID || (v.ID == video.ID && v.Bandwidth > video.Bandwidth) {
			video = v
		}
	}

	var haveAudio bool
	for _, a := range info.Audio {
		if a.URL() == "" {
			continue
		}
		if a.ID == hiResAudioID {
			return video, a, nil
		}
		if !haveAudio || a.Bandwidth > audio.Bandwidth {
			audio = a
			haveAudio = true
		}
	}
	if !haveAudio {
		return video, audio, newError(ErrKindNoRendition, "no playable audio rendition")
	}
	return video, audio, nil
}
