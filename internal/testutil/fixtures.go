package testutil

import (
	"testing"

	"github.com/junioryono/graft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ServiceFixture represents a test fixture for services
type ServiceFixture struct {
	Name        string
	ServiceType *graft.Type
	Constructor any
	Reuse       graft.Reuse
	Options     []graft.RegisterOption
}

// CommonFixtures provides common service configurations for testing
var CommonFixtures = struct {
	Logger       ServiceFixture
	Database     ServiceFixture
	Cache        ServiceFixture
	KeyedService func(key string) ServiceFixture
}{
	Logger: ServiceFixture{
		Name:        "Logger",
		ServiceType: graft.TypeOf[TestLogger](),
		Constructor: NewTestLogger,
		Reuse:       graft.Singleton,
	},
	Database: ServiceFixture{
		Name:        "Database",
		ServiceType: graft.TypeOf[TestDatabase](),
		Constructor: NewTestDatabase,
		Reuse:       graft.Singleton,
	},
	Cache: ServiceFixture{
		Name:        "Cache",
		ServiceType: graft.TypeOf[TestCache](),
		Constructor: NewTestCache,
		Reuse:       graft.Singleton,
	},
	KeyedService: func(key string) ServiceFixture {
		return ServiceFixture{
			Name:        "KeyedService",
			ServiceType: graft.TypeOf[*TestService](),
			Constructor: NewTestService,
			Reuse:       graft.Singleton,
			Options:     []graft.RegisterOption{graft.WithServiceKey(key)},
		}
	},
}

// BuildFixture registers a fixture with a container
func BuildFixture(t *testing.T, c *graft.Container, fixture ServiceFixture) {
	t.Helper()

	opts := append([]graft.RegisterOption{graft.WithReuse(fixture.Reuse)}, fixture.Options...)
	err := c.Register(fixture.ServiceType, graft.Ctor(fixture.Constructor), opts...)
	require.NoError(t, err, "failed to register %s", fixture.Name)
}

// SetupBasicServices registers the common test services
func SetupBasicServices(t *testing.T, c *graft.Container) {
	t.Helper()

	BuildFixture(t, c, CommonFixtures.Logger)
	BuildFixture(t, c, CommonFixtures.Database)
	BuildFixture(t, c, CommonFixtures.Cache)
}

// CreateContainerWithBasicServices creates a container with basic test services
func CreateContainerWithBasicServices(t *testing.T) *graft.Container {
	t.Helper()

	c := NewContainerBuilder(t).Build()
	SetupBasicServices(t, c)
	return c
}

// TestScenario represents a test scenario configuration
type TestScenario struct {
	Name     string
	Setup    func(t *testing.T) *graft.Container
	Validate func(t *testing.T, c *graft.Container)
}

// RunTestScenarios executes a set of test scenarios
func RunTestScenarios(t *testing.T, scenarios []TestScenario) {
	t.Helper()

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			t.Parallel()

			c := scenario.Setup(t)
			scenario.Validate(t, c)
		})
	}
}

// ErrorTestCase represents a test case for error scenarios
type ErrorTestCase struct {
	Name      string
	Setup     func(t *testing.T) *graft.Container
	Action    func(c *graft.Container) error
	WantError error
	WantCode  graft.ErrorCode
	CheckErr  func(t *testing.T, err error)
}

// RunErrorTestCases executes error test cases
func RunErrorTestCases(t *testing.T, cases []ErrorTestCase) {
	t.Helper()

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			c := tc.Setup(t)
			err := tc.Action(c)

			if tc.WantError != nil {
				RequireError(t, err)
				assert.ErrorIs(t, err, tc.WantError)
			}

			if tc.WantCode != 0 {
				AssertErrorCode(t, err, tc.WantCode)
			}

			if tc.CheckErr != nil {
				tc.CheckErr(t, err)
			}
		})
	}
}
