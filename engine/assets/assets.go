package assets

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

const DEFAULT_DEBOUNCE = 100 * time.Millisecond

type AssetType int

const (
	ASSET_TYPE_NONE AssetType = iota
	ASSET_TYPE_SHADER
	ASSET_TYPE_SHADER_INCLUDE
)

type AssetInfo struct {
	Path         string
	Name         string
	Type         AssetType
	LastModified time.Time
}

type Options struct {
	// File extensions (with the dot) that identify shader sources.
	Extensions []string
	// Directories whose files are included by other shaders. A change in
	// any of them reloads every known shader.
	IncludeDirs []string
	Debounce    time.Duration
}

// AssetManager watches the asset tree and publishes the names of shaders
// whose source changed. It never touches GPU state: the consumer drains
// Reloads() from the render thread.
type AssetManager struct {
	options Options
	assets  map[string]AssetInfo
	pending map[string]*time.Timer

	mutex sync.Mutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	reloads  chan string
	wg       sync.WaitGroup
}

func NewAssetManager(options Options) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if options.Debounce <= 0 {
		options.Debounce = DEFAULT_DEBOUNCE
	}
	includes := make([]string, 0, len(options.IncludeDirs))
	for _, dir := range options.IncludeDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			includes = append(includes, abs)
		}
	}
	options.IncludeDirs = includes

	return &AssetManager{
		options:  options,
		assets:   make(map[string]AssetInfo),
		pending:  make(map[string]*time.Timer),
		fsnotify: fsWatch,
		reloads:  make(chan string, 16),
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	if err := am.addRecursive(assetsDir); err != nil {
		core.LogError("failed to watch `%s`: %s", assetsDir, err)
		return err
	}
	for _, dir := range am.options.IncludeDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := am.addRecursive(dir); err != nil {
			core.LogError("failed to watch `%s`: %s", dir, err)
			return err
		}
	}

	am.wg.Add(1)
	go am.start()
	return nil
}

// Reloads yields shader names, one per debounced change.
func (am *AssetManager) Reloads() <-chan string {
	return am.reloads
}

// Shaders returns the names of the shader sources found so far, sorted.
func (am *AssetManager) Shaders() []string {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	names := make([]string, 0, len(am.assets))
	for _, a := range am.assets {
		if a.Type == ASSET_TYPE_SHADER && !slices.Contains(names, a.Name) {
			names = append(names, a.Name)
		}
	}
	slices.Sort(names)
	return names
}

func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	for name, t := range am.pending {
		t.Stop()
		delete(am.pending, name)
	}
	am.mutex.Unlock()

	close(am.done)
	am.wg.Wait()
	return nil
}

// addRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	am.mutex.Lock()
	closed := am.isClosed
	am.mutex.Unlock()
	if closed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name)
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch new directory `%s`: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name, true)
			}
			//Can't stat a deleted path, so just try to remove it from the watch list.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found along the way.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath, false)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string, changed bool) {
	info := am.classify(path)
	if info.Type == ASSET_TYPE_NONE {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()

	am.assets[info.Path] = info
	if !changed || am.isClosed {
		return
	}

	switch info.Type {
	case ASSET_TYPE_SHADER:
		am.schedule(info.Name)
	case ASSET_TYPE_SHADER_INCLUDE:
		for _, a := range am.assets {
			if a.Type == ASSET_TYPE_SHADER {
				am.schedule(a.Name)
			}
		}
	}
}

// schedule restarts the debounce timer of name. Caller holds the mutex.
func (am *AssetManager) schedule(name string) {
	if t, ok := am.pending[name]; ok {
		t.Reset(am.options.Debounce)
		return
	}
	am.pending[name] = time.AfterFunc(am.options.Debounce, func() {
		am.mutex.Lock()
		delete(am.pending, name)
		am.mutex.Unlock()

		select {
		case am.reloads <- name:
			core.LogDebug("shader `%s` changed on disk", name)
		case <-am.done:
		}
	})
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, abs)
}

func (am *AssetManager) classify(path string) AssetInfo {
	abs, err := filepath.Abs(path)
	if err != nil {
		return AssetInfo{}
	}
	info := AssetInfo{Path: abs, LastModified: time.Now()}

	for _, dir := range am.options.IncludeDirs {
		if strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			info.Type = ASSET_TYPE_SHADER_INCLUDE
			return info
		}
	}

	ext := filepath.Ext(abs)
	if !slices.Contains(am.options.Extensions, ext) {
		return AssetInfo{}
	}
	info.Type = ASSET_TYPE_SHADER
	info.Name = strings.TrimSuffix(filepath.Base(abs), ext)
	return info
}
