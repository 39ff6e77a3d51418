package bili

import (
	"context"
	"net/url"
	"strconv"

	"github.com/duke-git/lancet/v2/slice"
)

// Folder is one favorites collection owned by or collected by the user.
type Folder struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	MediaCount int    `json:"media_count"`
}

// FavoriteItem is one video referenced from a favorites folder.
type FavoriteItem struct {
	BVID     string
	Title    string
	Uploader string
	FolderID int64
}

type folderListData struct {
	List    []Folder `json:"list"`
	HasMore bool     `json:"has_more"`
}

// ListFolders discovers the favorites folders of the authenticated user:
// both self-created and collected ones. When targets is non-empty the
// result is filtered down to those folder ids.
func (c *Client) ListFolders(ctx context.Context, targets []int64) ([]Folder, error) {
	mid, err := c.UserID()
	if err != nil {
		return nil, err
	}

	created, err := c.paginateFolders(ctx, "/x/v3/fav/folder/created/list", mid, true)
	if err != nil {
		return nil, err
	}
	collected, err := c.paginateFolders(ctx, "/x/v3/fav/folder/collected/list", mid, false)
	if err != nil {
		return nil, err
	}

	folders := append(created, collected...)
	if len(targets) == 0 {
		return folders, nil
	}
	return slice.Filter(folders, func(_ int, f Folder) bool {
		return slice.Contain(targets, f.ID)
	}), nil
}

func (c *Client) paginateFolders(ctx context.Context, path, mid string, created bool) ([]Folder, error) {
	var folders []Folder
	for page := 1; ; page++ {
		params := baseParams()
		params.Set("up_mid", mid)
		params.Set("pn", strconv.Itoa(page))
		params.Set("ps", strconv.Itoa(pageSize))
		if created {
			params.Set("type", "1")
		}

		var data folderListData
		if err := c.getJSON(ctx, path, params, &data); err != nil {
			return nil, err
		}
		folders = append(folders, data.List...)
		if len(data.List) < pageSize {
			return folders, nil
		}
		if err := c.sleep(ctx, c.RequestInterval); err != nil {
			return nil, err
		}
	}
}

type mediaListData struct {
	Medias []struct {
		BVID  string `json:"bvid"`
		Title string `json:"title"`
		Upper struct {
			Name string `json:"name"`
		} `json:"upper"`
	} `json:"medias"`
}

// FolderItems pages through the contents of one favorites folder,
// newest first, until a short page signals exhaustion.
func (c *Client) FolderItems(ctx context.Context, folderID int64) ([]FavoriteItem, error) {
	var items []FavoriteItem
	for page := 1; ; page++ {
		params := baseParams()
		params.Set("media_id", strconv.FormatInt(folderID, 10))
		params.Set("pn", strconv.Itoa(page))
		params.Set("ps", strconv.Itoa(pageSize))
		params.Set("keyword", "")
		params.Set("order", "mtime")
		params.Set("type", "0")
		params.Set("tid", "0")
		params.Set("jsonp", "jsonp")

		var data mediaListData
		if err := c.getJSON(ctx, "/medialist/gateway/base/spaceDetail", params, &data); err != nil {
			return nil, err
		}
		for _, m := range data.Medias {
			if m.BVID == "" {
				continue
			}
			items = append(items, FavoriteItem{
				BVID:     m.BVID,
				Title:    m.Title,
				Uploader: m.Upper.Name,
				FolderID: folderID,
			})
		}
		if len(data.Medias) < pageSize {
			return items, nil
		}
		if err := c.sleep(ctx, c.RequestInterval); err != nil {
			return nil, err
		}
	}
}

// VideoPage is one part of a possibly multi-part video.
type VideoPage struct {
	CID  int64  `json:"cid"`
	Page int    `json:"page"`
	Part string `json:"part"`
}

type VideoInfo struct {
	BVID  string `json:"bvid"`
	Title string `json:"title"`
	Owner struct {
		Name string `json:"name"`
	} `json:"owner"`
	Pages []VideoPage `json:"pages"`
}

// FetchVideoInfo loads title, uploader and the page (part) list of a video.
func (c *Client) FetchVideoInfo(ctx context.Context, bvid string) (*VideoInfo, error) {
	params := make(url.Values)
	params.Set("bvid", bvid)

	var info VideoInfo
	if err := c.getJSON(ctx, "/x/web-interface/view", params, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
