// Package assets keeps a catalog of the files under the asset root and reports
// changes to them on the event bus.
package assets

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/vista/engine/assets/loaders"
	"github.com/spaghettifunk/vista/engine/core"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypeTexture
	AssetTypeModel
	AssetTypeMaterialLibrary
)

type AssetInfo struct {
	Path       string
	Type       AssetType
	Modified   time.Time
	LastLoaded time.Time
}

type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader
	bus     *core.EventBus

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

// NewAssetManager creates a manager that fires EVENT_CODE_ASSET_CHANGED on bus. bus may be nil.
func NewAssetManager(bus *core.EventBus) *AssetManager {
	am := &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[AssetType]Loader),
		bus:     bus,
	}
	am.registerLoader(AssetTypeShader, &loaders.BinaryLoader{})
	am.registerLoader(AssetTypeTexture, &loaders.TextureLoader{})
	am.registerLoader(AssetTypeModel, &loaders.ModelLoader{})
	return am
}

// Initialize catalogs every file under assetsDir. With watch set the directory tree is
// watched for changes until Shutdown.
func (am *AssetManager) Initialize(assetsDir string, watch bool) error {
	if !watch {
		return filepath.WalkDir(assetsDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				am.handleFileEvent(path)
			}
			return nil
		})
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating asset watcher")
	}
	am.fsnotify = fsWatch
	am.done = make(chan struct{})
	am.stopped = make(chan struct{})

	if err := am.addRecursive(assetsDir); err != nil {
		_ = fsWatch.Close()
		return err
	}
	go am.start()
	core.LogInfo("Watching assets under %s.", assetsDir)
	return nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset decodes path with the loader registered for its type.
func (am *AssetManager) LoadAsset(path string) (interface{}, error) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	loader, ok := am.loaders[assetType]
	if !ok {
		return nil, errors.Newf("no loader registered for %s", path)
	}

	am.mutex.Lock()
	asset, exists := am.assets[path]
	if !exists {
		asset = AssetInfo{Path: path, Type: assetType}
	}
	asset.LastLoaded = time.Now()
	am.assets[path] = asset
	am.mutex.Unlock()

	return loader.Load(path)
}

// LoadSPIRV reads a shader binary.
func (am *AssetManager) LoadSPIRV(path string) ([]uint32, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	return res.([]uint32), nil
}

// Decode reads a texture into RGBA pixels.
func (am *AssetManager) Decode(path string) (*image.RGBA, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	return res.(*image.RGBA), nil
}

func (am *AssetManager) LoadModel(path string) (*loaders.Model, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	return res.(*loaders.Model), nil
}

// Asset returns the catalog entry of path.
func (am *AssetManager) Asset(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

// Assets lists the catalogued paths of the given type in lexical order.
func (am *AssetManager) Assets(assetType AssetType) []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var paths []string
	for p, info := range am.assets {
		if info.Type == assetType {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths
}

// Shutdown stops the watcher. The catalog stays readable.
func (am *AssetManager) Shutdown() {
	if am.fsnotify == nil || am.isClosed {
		return
	}
	am.isClosed = true
	close(am.done)
	<-am.stopped
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleWatchEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			if err := am.fsnotify.Close(); err != nil {
				core.LogWarn("closing asset watcher: %s", err)
			}
			return
		}
	}
}

func (am *AssetManager) handleWatchEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("watching %s: %s", e.Name, err)
			}
		}
		return
	}
	// Handle create or modify events
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 && err == nil {
		if am.handleFileEvent(e.Name) && am.bus != nil {
			am.bus.Fire(core.EVENT_CODE_ASSET_CHANGED, am, core.EventContext{Path: filepath.Clean(e.Name)})
		}
	}
	// Removed or renamed paths can no longer be stat'ed, so they are dropped from the
	// catalog and the watch list whatever they were.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		am.removeAsset(e.Name)
		_ = am.fsnotify.Remove(e.Name)
	}
}

// watchRecursive adds all directories under the given one to the watch list and
// catalogs the files found on the way.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file. Reports whether the file is an asset.
func (am *AssetManager) handleFileEvent(path string) bool {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}

	info := AssetInfo{Path: path, Type: assetType}
	if s, err := os.Stat(path); err == nil {
		info.Modified = s.ModTime()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info.LastLoaded = am.assets[path].LastLoaded
	am.assets[path] = info
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func determineAssetType(path string) AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return AssetTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return AssetTypeTexture
	case ".obj":
		return AssetTypeModel
	case ".mtl":
		return AssetTypeMaterialLibrary
	default:
		return AssetTypeNone
	}
}

// ShaderTemplate returns the template a shader binary belongs to:
// "<dir>/triangle_frag.spv" belongs to "triangle".
func ShaderTemplate(path string) (string, bool) {
	base := filepath.Base(path)
	for _, suffix := range []string{"_vert.spv", "_frag.spv"} {
		if name, ok := strings.CutSuffix(base, suffix); ok && name != "" {
			return name, true
		}
	}
	return "", false
}
