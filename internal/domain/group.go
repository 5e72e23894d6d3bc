package domain

type GroupName string

type Group struct {
	Name GroupName
}
