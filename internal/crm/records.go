// internal/crm/records.go
package crm

import (
	"context"
	"fmt"
	"strings"
)

// Fixed field projections for the record types the suite verifies.
// Queries always project the full set so downstream assertions never
// chase missing columns.
const (
	contactFields = "Id, FirstName, LastName, Email, Adoption_Status__c, " +
		"Faculty_Verified__c, Accounts_UUID__c, School_Name__c"
	leadFields = "Id, FirstName, LastName, Email, Status, Role__c, " +
		"Number_of_Students__c, Subject__c, Company"
	organizationFields = "Id, Name, Type, Website"
)

// Contact is a verified-instructor record.
type Contact struct {
	ID              string `json:"Id"`
	FirstName       string `json:"FirstName"`
	LastName        string `json:"LastName"`
	Email           string `json:"Email"`
	AdoptionStatus  string `json:"Adoption_Status__c"`
	FacultyVerified string `json:"Faculty_Verified__c"`
	AccountsUUID    string `json:"Accounts_UUID__c"`
	SchoolName      string `json:"School_Name__c"`
}

// Lead is a pending signup awaiting review.
type Lead struct {
	ID               string  `json:"Id"`
	FirstName        string  `json:"FirstName"`
	LastName         string  `json:"LastName"`
	Email            string  `json:"Email"`
	Status           string  `json:"Status"`
	Role             string  `json:"Role__c"`
	NumberOfStudents float64 `json:"Number_of_Students__c"`
	Subject          string  `json:"Subject__c"`
	Company          string  `json:"Company"`
}

// Organization is an institution record.
type Organization struct {
	ID      string `json:"Id"`
	Name    string `json:"Name"`
	Type    string `json:"Type"`
	Website string `json:"Website"`
}

// escapeSOQL doubles the quote characters SOQL treats specially.
func escapeSOQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ContactByEmail fetches the contact for an address, nil when absent.
func (c *Client) ContactByEmail(ctx context.Context, email string) (*Contact, error) {
	soql := fmt.Sprintf("SELECT %s FROM Contact WHERE Email = '%s'", contactFields, escapeSOQL(email))
	var contacts []Contact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return &contacts[0], nil
}

// LeadsBySchool fetches every lead whose company matches the school.
func (c *Client) LeadsBySchool(ctx context.Context, school string) ([]Lead, error) {
	soql := fmt.Sprintf("SELECT %s FROM Lead WHERE Company = '%s'", leadFields, escapeSOQL(school))
	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// OrganizationByName fetches an institution record, nil when absent.
func (c *Client) OrganizationByName(ctx context.Context, name string) (*Organization, error) {
	soql := fmt.Sprintf("SELECT %s FROM Account WHERE Name = '%s'", organizationFields, escapeSOQL(name))
	var orgs []Organization
	if err := c.Query(ctx, soql, &orgs); err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}
