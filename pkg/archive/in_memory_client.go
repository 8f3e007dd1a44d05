package archive

import (
	"io"
	"strings"
	"sync"
)

// InMemoryClient is a Client backed by a list of descriptors and their
// contents. It records how often FindFiles was called.
type InMemoryClient struct {
	// Can be used to simulate an error by setting it.
	ErrToReturn error

	mu             sync.Mutex
	files          []FileDescriptor
	contents       map[int64][]byte
	findFilesCalls int
	downloadCalls  int
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{contents: make(map[int64][]byte)}
}

// AddFile stores a file and its content.
func (c *InMemoryClient) AddFile(fd FileDescriptor, content []byte) *InMemoryClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fd.Size == 0 {
		fd.Size = int64(len(content))
	}

	c.files = append(c.files, fd)
	c.contents[fd.FileID] = content

	return c
}

func (c *InMemoryClient) FindFiles(namePattern, subdirPattern, datasetName string, recurse bool) ([]FileDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.findFilesCalls++

	if c.ErrToReturn != nil {
		return nil, c.ErrToReturn
	}

	var matches []FileDescriptor
	for _, fd := range c.files {
		if !strings.EqualFold(fd.DatasetName, datasetName) {
			continue
		}

		if Matches(fd, namePattern, subdirPattern, recurse) {
			matches = append(matches, fd)
		}
	}

	return matches, nil
}

func (c *InMemoryClient) Download(fd FileDescriptor, w io.Writer) error {
	c.mu.Lock()
	c.downloadCalls++
	content, ok := c.contents[fd.FileID]
	err := c.ErrToReturn
	c.mu.Unlock()

	if err != nil {
		return err
	}

	if !ok {
		return ErrNotFound
	}

	_, err = w.Write(content)
	return err
}

func (c *InMemoryClient) FindFilesCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findFilesCalls
}

func (c *InMemoryClient) DownloadCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloadCalls
}
