// Package google appends portal activity to a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"torch/internal/domain"
	"torch/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	sessionsRange  = "Sessions!A:K"
	inquiriesRange = "Inquiries!A:F"
	membersSheet   = "Members"
)

var (
	sessionHeaders = []interface{}{"Session ID", "Member ID", "Member", "Email", "Tier", "Date", "Start", "End", "Type", "Hours", "Guests"}
	inquiryHeaders = []interface{}{"Timestamp", "Name", "Email", "Role", "Message", "Status"}
	memberHeaders  = []interface{}{"ID", "Name", "Email", "Tier", "Founding", "Join Date", "Hours Used", "Hours Scheduled", "Company"}
)

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

var _ domain.SheetsWriter = (*SheetsService)(nil)

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return NewSheetsServiceWith(srv, spreadsheetID), nil
}

// NewSheetsServiceWith wraps an already configured Sheets client.
func NewSheetsServiceWith(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{service: srv, spreadsheetID: spreadsheetID}
}

// TestConnection проверяет доступ к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// AppendSession добавляет строку о новой сессии
func (s *SheetsService) AppendSession(ctx context.Context, member *models.Member, session *models.Session) error {
	return s.appendRow(ctx, sessionsRange, sessionRowValues(member, session))
}

// AppendInquiry добавляет заявку с сайта
func (s *SheetsService) AppendInquiry(ctx context.Context, inquiry *models.Inquiry) error {
	return s.appendRow(ctx, inquiriesRange, inquiryRowValues(inquiry))
}

// ReplaceMembersSheet overwrites the Members sheet with the full roster.
func (s *SheetsService) ReplaceMembersSheet(ctx context.Context, members []*models.Member) error {
	values := make([][]interface{}, 0, len(members)+1)
	values = append(values, memberHeaders)
	for _, m := range members {
		values = append(values, []interface{}{
			m.ID, m.Name, m.Email, string(m.Tier), m.Founding, m.JoinDate, m.HoursUsed, m.HoursScheduled, m.Company,
		})
	}

	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, membersSheet, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear members sheet: %w", err)
	}

	rangeData := fmt.Sprintf("%s!A1:I%d", membersSheet, len(values))
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// EnsureHeaders writes header rows to the Sessions and Inquiries sheets when they are empty.
func (s *SheetsService) EnsureHeaders(ctx context.Context) error {
	for rng, headers := range map[string][]interface{}{
		"Sessions!A1:K1":  sessionHeaders,
		"Inquiries!A1:F1": inquiryHeaders,
	} {
		resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read %s: %w", rng, err)
		}
		if len(resp.Values) > 0 {
			continue
		}
		if _, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{Values: [][]interface{}{headers}}).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write %s: %w", rng, err)
		}
	}
	return nil
}

func (s *SheetsService) appendRow(ctx context.Context, rangeData string, row []interface{}) error {
	valueRange := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", rangeData, err)
	}
	return nil
}

func sessionRowValues(member *models.Member, session *models.Session) []interface{} {
	return []interface{}{
		session.ID,
		member.ID,
		member.Name,
		member.Email,
		string(member.Tier),
		session.Date,
		session.StartTime,
		session.EndTime,
		session.Type,
		session.Hours,
		session.Guests,
	}
}

func inquiryRowValues(inquiry *models.Inquiry) []interface{} {
	ts := inquiry.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, inquiry.Timestamp); err == nil {
		ts = t.Format("2006-01-02 15:04:05")
	}
	return []interface{}{ts, inquiry.Name, inquiry.Email, inquiry.Role, inquiry.Message, inquiry.Status}
}
