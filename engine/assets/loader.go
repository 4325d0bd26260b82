package assets

import "github.com/spaghettifunk/anima/engine/assets/loaders"

type Loader interface {
	Load(path string) (*loaders.Resource, error)
}
