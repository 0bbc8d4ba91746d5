package homeconnect

import (
	"context"
	"fmt"

	"homelink/internal/integrations/homeconnect/api"
	"homelink/internal/schema"
	"homelink/pkg/host"

	"go.uber.org/zap"
)

// SettingData is the payload of the setting service.
type SettingData struct {
	DeviceID string        `json:"device_id" validate:"required"`
	Key      string        `json:"key" validate:"required"`
	Value    *schema.Value `json:"value" validate:"required"`
}

// OptionData is the payload of the option_active and option_selected
// services.
type OptionData struct {
	DeviceID string        `json:"device_id" validate:"required"`
	Key      string        `json:"key" validate:"required"`
	Value    *schema.Value `json:"value" validate:"required"`
	Unit     *string       `json:"unit"`
}

// ProgramData is the payload of select_program and start_program. Key and
// value come together or not at all; unit needs a key.
type ProgramData struct {
	DeviceID string               `json:"device_id" validate:"required"`
	Program  string               `json:"program" validate:"required"`
	Key      string               `json:"key" validate:"required_with=Value"`
	Value    *schema.ProgramValue `json:"value" validate:"required_with=Key"`
	Unit     *string              `json:"unit" validate:"excluded_without=Key"`
}

// CommandData is the payload of pause_program and resume_program.
type CommandData struct {
	DeviceID string `json:"device_id" validate:"required"`
}

type (
	keyValueMethod func(a Appliance, ctx context.Context, key string, value any, unit string) error
	programMethod  func(a Appliance, ctx context.Context, program string, options []api.Option) error
)

func (i *Integration) registerServices() {
	services := i.hass.Services()

	services.Register(Domain, ServiceOptionActive, schema.Of[OptionData](), i.keyValueService(Appliance.SetOptionsActiveProgram))
	services.Register(Domain, ServiceOptionSelected, schema.Of[OptionData](), i.keyValueService(Appliance.SetOptionsSelectedProgram))
	services.Register(Domain, ServiceSetting, schema.Of[SettingData](), i.keyValueService(Appliance.SetSetting))
	services.Register(Domain, ServicePauseProgram, schema.Of[CommandData](), i.commandService(BSHPause))
	services.Register(Domain, ServiceResumeProgram, schema.Of[CommandData](), i.commandService(BSHResume))
	services.Register(Domain, ServiceSelectProgram, schema.Of[ProgramData](), i.programService(Appliance.SelectProgram))
	services.Register(Domain, ServiceStartProgram, schema.Of[ProgramData](), i.programService(Appliance.StartProgram))
}

func (i *Integration) programService(method programMethod) host.ServiceHandler {
	return func(ctx context.Context, call host.ServiceCall) error {
		data, ok := call.Data.(*ProgramData)
		if !ok {
			return fmt.Errorf("%s.%s: unexpected payload %T", call.Domain, call.Service, call.Data)
		}

		var options []api.Option
		if data.Key != "" {
			option := api.Option{Key: data.Key, Value: data.Value.Interface()}
			if data.Unit != nil {
				option.Unit = *data.Unit
			}
			options = append(options, option)
		}

		appliance, err := i.applianceByDeviceID(data.DeviceID)
		if err != nil {
			return err
		}
		i.logger.Debug("Calling program service",
			zap.String("service", call.Service),
			zap.String("ha_id", appliance.Info().HaID),
			zap.String("program", data.Program))
		return i.hass.AddExecutorJob(ctx, func() error {
			return method(appliance, ctx, data.Program, options)
		})
	}
}

func (i *Integration) commandService(command string) host.ServiceHandler {
	return func(ctx context.Context, call host.ServiceCall) error {
		data, ok := call.Data.(*CommandData)
		if !ok {
			return fmt.Errorf("%s.%s: unexpected payload %T", call.Domain, call.Service, call.Data)
		}

		appliance, err := i.applianceByDeviceID(data.DeviceID)
		if err != nil {
			return err
		}
		return i.hass.AddExecutorJob(ctx, func() error {
			return appliance.ExecuteCommand(ctx, command)
		})
	}
}

func (i *Integration) keyValueService(method keyValueMethod) host.ServiceHandler {
	return func(ctx context.Context, call host.ServiceCall) error {
		var deviceID, key, unit string
		var value any

		switch data := call.Data.(type) {
		case *SettingData:
			deviceID, key, value = data.DeviceID, data.Key, data.Value.Interface()
		case *OptionData:
			deviceID, key, value = data.DeviceID, data.Key, data.Value.Interface()
			if data.Unit != nil {
				unit = *data.Unit
			}
		default:
			return fmt.Errorf("%s.%s: unexpected payload %T", call.Domain, call.Service, call.Data)
		}

		appliance, err := i.applianceByDeviceID(deviceID)
		if err != nil {
			return err
		}
		return i.hass.AddExecutorJob(ctx, func() error {
			return method(appliance, ctx, key, value, unit)
		})
	}
}
