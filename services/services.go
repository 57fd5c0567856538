package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"gorm.io/gorm"
)

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID string
	Name   string
	Email  string
	Admin  bool
}

// Dependencies are the collaborators every domain service is built from
type Dependencies struct {
	DB        *gorm.DB
	Broker    realtime.Broker
	Email     EmailService
	Snapshots SnapshotStore
	UserInfo  UserInfoProvider
}

var (
	orderServiceInstance          *OrderService
	serviceRequestServiceInstance *ServiceRequestService
	messageServiceInstance        *MessageService
	settingsServiceInstance       *SettingsService
	brokerInstance                realtime.Broker
	mailerInstance                *mailer
)

// Init builds the domain services and makes them available to the handlers
func Init(deps Dependencies) {
	notifier := realtime.NewNotifier(deps.Broker)
	settings := NewSettingsService(repository.NewSettingRepository(deps.DB))
	mail := &mailer{}
	mailerInstance = mail

	settingsServiceInstance = settings
	brokerInstance = deps.Broker
	userInfoInstance = deps.UserInfo
	orderServiceInstance = NewOrderService(
		repository.NewOrderRepository(deps.DB),
		repository.NewUserRepository(deps.DB),
		deps.Snapshots,
		notifier,
	)
	serviceRequestServiceInstance = NewServiceRequestService(
		repository.NewServiceRequestRepository(deps.DB),
		repository.NewCatalogRepository(deps.DB),
		settings,
		deps.Email,
		notifier,
		mail,
	)
	messageServiceInstance = NewMessageService(
		repository.NewMessageRepository(deps.DB),
		repository.NewServiceRequestRepository(deps.DB),
		deps.Email,
		notifier,
		mail,
	)
}

func GetOrderService() *OrderService {
	return orderServiceInstance
}

func GetServiceRequestService() *ServiceRequestService {
	return serviceRequestServiceInstance
}

func GetMessageService() *MessageService {
	return messageServiceInstance
}

func GetSettingsService() *SettingsService {
	return settingsServiceInstance
}

// WaitForNotifications blocks until every queued notification email has
// been handed to the email service
func WaitForNotifications() {
	if mailerInstance != nil {
		mailerInstance.wait()
	}
}

// StopNotifications refuses further notification emails and waits for the
// queued ones. Call it once the HTTP server and jobs have stopped.
func StopNotifications() {
	if mailerInstance != nil {
		mailerInstance.close()
	}
}

// GetBroker returns the broker dashboards subscribe to
func GetBroker() realtime.Broker {
	return brokerInstance
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(JSONFieldName)
	return v
}

// JSONFieldName reports a struct field by its JSON name in validation errors
func JSONFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// ValidationDetails maps each failing field to the rule it broke
func ValidationDetails(err error) map[string]string {
	details := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["_"] = err.Error()
		return details
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[field] = rule
	}
	return details
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
