package models

import "sort"

// Subjects maps subject codes to their display names.
var Subjects = map[string]string{
	"general":     "Общие вопросы",
	"math":        "Математика",
	"russian":     "Русский язык",
	"literature":  "Литература",
	"english":     "Английский язык",
	"physics":     "Физика",
	"chemistry":   "Химия",
	"biology":     "Биология",
	"history":     "История",
	"geography":   "География",
	"informatics": "Информатика",
}

// SubjectName returns the display name for a subject code, or the code itself.
func SubjectName(code string) string {
	if name, ok := Subjects[code]; ok {
		return name
	}
	return code
}

// SubjectCodes returns the known subject codes in sorted order.
func SubjectCodes() []string {
	codes := make([]string, 0, len(Subjects))
	for c := range Subjects {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
