package gist

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// document covers both shapes a source can return: the GitHub gist API
// object, whose files are a map keyed by name, and a bare jsGist with a
// file list.
type document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Owner       *owner          `json:"owner"`
	Files       json.RawMessage `json:"files"`
}

type owner struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type githubFile struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

// truncatedFile marks a file whose content must be fetched from RawURL
type truncatedFile struct {
	index  int
	rawURL string
}

func decode(body []byte) (Result, []truncatedFile, error) {
	var doc document
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return Result{}, nil, fmt.Errorf("gist: invalid json: %w", err)
	}

	res := Result{ID: doc.ID}
	if doc.Owner != nil {
		res.OwnerID = doc.Owner.ID
	}

	if len(doc.Files) == 0 {
		return Result{}, nil, fmt.Errorf("gist: no files")
	}

	switch doc.Files[0] {
	case '[':
		var files []protocol.File
		if err := sonic.Unmarshal(doc.Files, &files); err != nil {
			return Result{}, nil, fmt.Errorf("gist: invalid file list: %w", err)
		}
		res.Gist = protocol.Gist{Name: doc.Name, Files: files}
		return res, nil, nil

	case '{':
		var byName map[string]githubFile
		if err := sonic.Unmarshal(doc.Files, &byName); err != nil {
			return Result{}, nil, fmt.Errorf("gist: invalid file map: %w", err)
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)

		name := doc.Name
		if name == "" {
			name = doc.Description
		}
		res.Gist = protocol.Gist{Name: name, Files: make([]protocol.File, 0, len(names))}

		var truncated []truncatedFile
		for i, key := range names {
			f := byName[key]
			if f.Filename == "" {
				f.Filename = key
			}
			res.Gist.Files = append(res.Gist.Files, protocol.File{Name: f.Filename, Content: f.Content})
			if f.Truncated && f.RawURL != "" {
				truncated = append(truncated, truncatedFile{index: i, rawURL: f.RawURL})
			}
		}
		return res, truncated, nil
	}
	return Result{}, nil, fmt.Errorf("gist: files is neither a list nor a map")
}
