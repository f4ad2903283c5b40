package api

import "testing"

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr bool
	}{
		{"minimal", ScheduleRequest{TriggerMinute: 0}, false},
		{"last minute of day", ScheduleRequest{TriggerMinute: 1439}, false},
		{"minute too large", ScheduleRequest{TriggerMinute: 1440}, true},
		{"negative minute", ScheduleRequest{TriggerMinute: -1}, true},
		{"valid timezone", ScheduleRequest{TriggerMinute: 600, Timezone: "Europe/Amsterdam"}, false},
		{"bogus timezone", ScheduleRequest{TriggerMinute: 600, Timezone: "Mars/Olympus"}, true},
		{"valid cron", ScheduleRequest{TriggerMinute: 600, CronExpression: "30 10 * * 1-5"}, false},
		{"bogus cron", ScheduleRequest{TriggerMinute: 600, CronExpression: "not cron"}, true},
		{"timeout at max", ScheduleRequest{TriggerMinute: 600, RequestTimeout: 3600}, false},
		{"timeout over max", ScheduleRequest{TriggerMinute: 600, RequestTimeout: 3601}, true},
		{"negative timeout", ScheduleRequest{TriggerMinute: 600, RequestTimeout: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSchedule(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchedule(%+v) error = %v, wantErr %v", tt.req, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDevice(t *testing.T) {
	tests := []struct {
		name    string
		req     DeviceRequest
		wantErr bool
	}{
		{"fcm", DeviceRequest{Platform: "fcm", Handle: "token"}, false},
		{"apns", DeviceRequest{Platform: "apns", Handle: "token"}, false},
		{"unknown platform", DeviceRequest{Platform: "wns", Handle: "token"}, true},
		{"empty platform", DeviceRequest{Handle: "token"}, true},
		{"missing handle", DeviceRequest{Platform: "fcm"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDevice(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateDevice(%+v) error = %v, wantErr %v", tt.req, err, tt.wantErr)
			}
		})
	}
}
