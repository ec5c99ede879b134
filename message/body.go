package message

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/imapwatch/imapwire"
)

// Body is a delivered message's content, shaped like its BodyStructure:
// exactly one of Onepart/Multipart is set.
type Body struct {
	Onepart   *OnepartBody
	Multipart []Body
}

// OnepartBody is a single decoded leaf part.
type OnepartBody struct {
	Mime    string
	Params  map[string]string
	Content []byte
}

// PathKey renders a dotted body-section path ([]int{1,3,2}) as the string
// key ("1.3.2") used to address collected part contents.
func PathKey(path []int) string {
	parts := make([]string, len(path))
	for i, v := range path {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// FoldBodyTree folds the flat collection of leaf (path, raw bytes) pairs
// gathered during the fetch pipeline's Full stage into a Body tree that
// mirrors structure, decoding each leaf's content per its declared
// transfer encoding. It is a pure function over its inputs.
func FoldBodyTree(structure imapwire.BodyStructure, contents map[string][]byte) (Body, error) {
	return foldBodyTree(structure, nil, contents)
}

func foldBodyTree(structure imapwire.BodyStructure, prefix []int, contents map[string][]byte) (Body, error) {
	if structure.Onepart != nil {
		path := prefix
		if len(path) == 0 {
			path = []int{1}
		}
		key := PathKey(path)
		raw, ok := contents[key]
		if !ok {
			return Body{}, fmt.Errorf("message: missing collected content for part %q", key)
		}
		decoded, err := DecodeBody(*structure.Onepart, raw)
		if err != nil {
			return Body{}, fmt.Errorf("message: decoding part %q: %w", key, err)
		}
		return Body{Onepart: &OnepartBody{
			Mime:    structure.Onepart.MimeType(),
			Params:  structure.Onepart.Params,
			Content: decoded,
		}}, nil
	}

	children := make([]Body, len(structure.Multipart.Children))
	for i, child := range structure.Multipart.Children {
		b, err := foldBodyTree(child, append(append([]int{}, prefix...), i+1), contents)
		if err != nil {
			return Body{}, err
		}
		children[i] = b
	}
	return Body{Multipart: children}, nil
}
