package graft

// Module is a group of registrations applied to a container.
type Module func(c *Container) error

// NewModule creates a module with the given name and builders. Modules are
// a way to group related registrations together; errors are wrapped in a
// ModuleError naming the module.
//
// Example:
//
//	var DatabaseModule = graft.NewModule("database",
//	    graft.Provide(graft.TypeOf[*sql.DB](), graft.Ctor(OpenDB), graft.WithReuse(graft.Singleton)),
//	    graft.Provide(graft.TypeOf[UserRepository](), graft.Ctor(NewUserRepository), graft.WithReuse(graft.Scoped)),
//	)
//
//	var AppModule = graft.NewModule("app",
//	    DatabaseModule,
//	    graft.Decorate(graft.TypeOf[UserRepository](), graft.Ctor(NewCachedRepository)),
//	)
func NewModule(name string, builders ...Module) Module {
	return func(c *Container) error {
		for _, builder := range builders {
			if builder == nil {
				continue
			}

			if err := builder(c); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}

		return nil
	}
}

// Provide creates a Module registering impl under serviceType.
func Provide(serviceType *Type, impl Implementation, opts ...RegisterOption) Module {
	return func(c *Container) error {
		return c.Register(serviceType, impl, opts...)
	}
}

// ProvideInstance creates a Module registering v as the instance of
// serviceType.
func ProvideInstance(serviceType *Type, v any, opts ...RegisterOption) Module {
	return func(c *Container) error {
		return c.RegisterInstance(serviceType, v, opts...)
	}
}

// Decorate creates a Module registering impl as a decorator of serviceType.
func Decorate(serviceType *Type, impl Implementation, opts ...RegisterOption) Module {
	return func(c *Container) error {
		return c.Register(serviceType, impl, append(opts, AsDecorator())...)
	}
}

// Apply applies modules to c in order and stops at the first failure.
func (c *Container) Apply(modules ...Module) error {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m(c); err != nil {
			return err
		}
	}
	return nil
}
