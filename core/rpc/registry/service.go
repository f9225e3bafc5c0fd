// Package registry maps (service, method) names to Go methods discovered
// by reflection, the dispatch table behind the admin RPC server. A
// registrable method has the shape
//
//	func (s *Svc) Name(ctx context.Context, args *Args) (*Reply, error)
//
// which is what app.AdminService's Stats/Report/Maintenance methods look
// like; anything else on the receiver is skipped silently so service
// structs are free to carry helpers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrServiceNotFound = errors.New("registry: service not found")
	ErrMethodNotFound  = errors.New("registry: method not found")
	ErrInvalidMethod   = errors.New("registry: invalid method signature")
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Method is one callable endpoint: the bound function plus the element
// types the server instantiates for decode.
type Method struct {
	Name      string
	Func      reflect.Value
	ArgType   reflect.Type
	ReplyType reflect.Type
}

// Service is one registered receiver and its discovered methods.
type Service struct {
	Name    string
	Type    reflect.Type
	Value   reflect.Value
	Methods map[string]*Method
}

// ServiceRegistry is the name → service → method table.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]*Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]*Service)}
}

// Register scans receiver's method set and records every method matching
// the registrable shape under serviceName. Registering the same name
// twice replaces the earlier receiver.
func (r *ServiceRegistry) Register(serviceName string, receiver interface{}) error {
	svc := &Service{
		Name:    serviceName,
		Type:    reflect.TypeOf(receiver),
		Value:   reflect.ValueOf(receiver),
		Methods: make(map[string]*Method),
	}

	for i := 0; i < svc.Type.NumMethod(); i++ {
		m := svc.Type.Method(i)
		if endpoint := registrable(m); endpoint != nil {
			svc.Methods[m.Name] = endpoint
		}
	}

	r.mu.Lock()
	r.services[serviceName] = svc
	r.mu.Unlock()
	return nil
}

// registrable returns the Method for m, or nil when m doesn't have the
// func(receiver, ctx, *Args) (*Reply, error) shape.
func registrable(m reflect.Method) *Method {
	if m.PkgPath != "" { // unexported
		return nil
	}
	t := m.Type
	if t.NumIn() != 3 || t.NumOut() != 2 {
		return nil
	}
	if !t.In(1).Implements(ctxType) {
		return nil
	}
	arg, reply := t.In(2), t.Out(0)
	if arg.Kind() != reflect.Ptr || reply.Kind() != reflect.Ptr {
		return nil
	}
	if !t.Out(1).Implements(errType) {
		return nil
	}
	return &Method{
		Name:      m.Name,
		Func:      m.Func,
		ArgType:   arg.Elem(),
		ReplyType: reply.Elem(),
	}
}

// GetService looks a service up by name.
func (r *ServiceRegistry) GetService(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return svc, nil
}

// GetMethod resolves (serviceName, methodName) to the service and the
// endpoint in one lookup.
func (r *ServiceRegistry) GetMethod(serviceName, methodName string) (*Service, *Method, error) {
	svc, err := r.GetService(serviceName)
	if err != nil {
		return nil, nil, err
	}
	m, ok := svc.Methods[methodName]
	if !ok {
		return nil, nil, ErrMethodNotFound
	}
	return svc, m, nil
}

// Call invokes the named method with arg (which must be *ArgType) and
// returns its reply.
func (r *ServiceRegistry) Call(ctx context.Context, serviceName, methodName string, arg interface{}) (interface{}, error) {
	svc, m, err := r.GetMethod(serviceName, methodName)
	if err != nil {
		return nil, err
	}

	argVal := reflect.ValueOf(arg)
	if argVal.Type() != reflect.PtrTo(m.ArgType) {
		return nil, fmt.Errorf("%w: %s.%s wants %v, got %v",
			ErrInvalidMethod, serviceName, methodName, reflect.PtrTo(m.ArgType), argVal.Type())
	}

	out := m.Func.Call([]reflect.Value{svc.Value, reflect.ValueOf(ctx), argVal})
	if errVal := out[1]; !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	return out[0].Interface(), nil
}

// ListServices returns every registered service name.
func (r *ServiceRegistry) ListServices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// ListMethods returns the callable method names of one service.
func (r *ServiceRegistry) ListMethods(serviceName string) ([]string, error) {
	svc, err := r.GetService(serviceName)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(svc.Methods))
	for name := range svc.Methods {
		names = append(names, name)
	}
	return names, nil
}
