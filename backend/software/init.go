package software

import "github.com/gogpu/hiz/backend"

func init() {
	backend.Register(backend.BackendSoftware, func() (backend.Backend, error) {
		return New(), nil
	})
}
