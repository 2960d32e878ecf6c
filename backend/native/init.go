package native

import "github.com/gogpu/hiz/backend"

func init() {
	backend.Register(backend.BackendNative, func() (backend.Backend, error) {
		d, err := Open()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
