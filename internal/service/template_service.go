// internal/service/template_service.go
package service

import (
	"sort"
	"strings"

	"github.com/unclebandit/canvass-backend/internal/model"
)

// RenderTemplate replaces every {key} in template with data[key] in a single
// pass, so substituted values are never expanded again. Unknown tokens are
// left as written.
func RenderTemplate(template string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// ApplyScript fills a script with contact, texter and custom-field tokens.
// Built-in tokens win over custom fields of the same name.
func ApplyScript(script string, contact *model.CampaignContact, texter *model.User) string {
	data := make(map[string]string, len(contact.CustomFields)+8)
	for k, v := range contact.CustomFields {
		data[k] = v
	}
	data["firstName"] = contact.FirstName
	data["lastName"] = contact.LastName
	data["cell"] = contact.Cell
	data["zip"] = contact.Zip
	data["city"] = contact.City
	data["state"] = contact.State
	if texter != nil {
		data["texterFirstName"] = texter.FirstName
		data["texterLastName"] = texter.LastName
	}
	return RenderTemplate(script, data)
}
