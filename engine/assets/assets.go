package assets

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima/engine/assets/loaders"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeTexture
	AssetTypeShader
	AssetTypeModel
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeTexture:
		return "texture"
	case AssetTypeShader:
		return "shader"
	case AssetTypeModel:
		return "model"
	}
	return "none"
}

type AssetInfo struct {
	ID         uuid.UUID
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// AssetManager indexes the files under the assets root, loads them with the
// loader registered for their type and reports modified files on Changes
// when watching is enabled.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan AssetInfo
}

func NewAssetManager() *AssetManager {
	am := &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[AssetType]Loader),
		changes: make(chan AssetInfo, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	am.registerLoader(AssetTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(AssetTypeTexture, &loaders.TextureLoader{})
	am.registerLoader(AssetTypeModel, &loaders.ModelLoader{})
	return am
}

// Initialize indexes assetsDir. With watch set, files created or written
// below it are reported on Changes until Shutdown.
func (am *AssetManager) Initialize(assetsDir string, watch bool) error {
	if !watch {
		return am.watchRecursive(assetsDir)
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = fsWatch
	if err := am.watchRecursive(assetsDir); err != nil {
		fsWatch.Close()
		am.fsnotify = nil
		return err
	}
	go am.start()
	core.LogDebug("watching %s for asset changes", assetsDir)
	return nil
}

// Changes delivers assets that were modified on disk. The channel is never
// closed; it is drained by the main loop.
func (am *AssetManager) Changes() <-chan AssetInfo {
	return am.changes
}

func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// Find returns the index entry of path.
func (am *AssetManager) Find(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

// LoadAsset loads path with the loader of its type. Paths outside the
// indexed tree are loaded too and added to the index.
func (am *AssetManager) LoadAsset(path string) (*loaders.Resource, error) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	loader, ok := am.loaders[assetType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for %s (type %s)", path, assetType)
	}

	res, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	info := am.track(path, assetType)
	core.LogDebug("loaded %s %s [%s] (%d bytes)", assetType, path, info.ID, res.DataSize)
	return res, nil
}

// LoadModel loads an OBJ mesh.
func (am *AssetManager) LoadModel(path string) ([]renderer.Vertex, []uint32, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, nil, err
	}
	mesh, ok := res.Data.(*loaders.Mesh)
	if !ok {
		return nil, nil, fmt.Errorf("%s is not a model", path)
	}
	return mesh.Vertices, mesh.Indices, nil
}

func (am *AssetManager) LoadImage(path string) (*image.RGBA, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	img, ok := res.Data.(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("%s is not an image", path)
	}
	return img, nil
}

func (am *AssetManager) LoadShader(path string) ([]byte, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	code, ok := res.Data.([]byte)
	if !ok {
		return nil, fmt.Errorf("%s is not a shader", path)
	}
	return code, nil
}

func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	if am.fsnotify != nil {
		<-am.stopped
	}
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	path := filepath.Clean(e.Name)

	if e.Has(fsnotify.Create) {
		if s, err := os.Stat(path); err == nil && s.IsDir() {
			if err := am.watchRecursive(path); err != nil {
				core.LogWarn("failed to watch new directory %s: %s", path, err)
			}
			return
		}
	}
	if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		am.removeAsset(path)
		return
	}
	if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
		return
	}

	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return
	}
	info := am.track(path, assetType)
	select {
	case am.changes <- info:
	default:
		core.LogWarn("asset change queue full, dropping %s", path)
	}
}

// watchRecursive indexes every file below root and, when a watcher exists,
// adds every directory to it.
func (am *AssetManager) watchRecursive(root string) error {
	return filepath.Walk(root, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		if assetType := determineAssetType(walkPath); assetType != AssetTypeNone {
			am.track(filepath.Clean(walkPath), assetType)
		}
		return nil
	})
}

// track records path in the index, keeping the ID it already has.
func (am *AssetManager) track(path string, assetType AssetType) AssetInfo {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	info, ok := am.assets[path]
	if !ok {
		info = AssetInfo{ID: uuid.New(), Path: path, Type: assetType}
	}
	info.LastLoaded = time.Now()
	am.assets[path] = info
	return info
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func determineAssetType(path string) AssetType {
	switch filepath.Ext(path) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return AssetTypeTexture
	case ".spv":
		return AssetTypeShader
	case ".obj":
		return AssetTypeModel
	default:
		return AssetTypeNone
	}
}
