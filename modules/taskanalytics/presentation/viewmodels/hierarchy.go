package viewmodels

type Person struct {
	ID    int64  `json:"id"`
	EmpID string `json:"empid"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type Task struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	PercentComplete int    `json:"percent_complete"`
	Priority        string `json:"priority,omitempty"`
	AssignedToID    int64  `json:"assigned_to_id"`
	DueDate         string `json:"due_date,omitempty"`
	Delayed         bool   `json:"delayed"`
	DelayDays       int    `json:"delay_days"`
}

type Rollup struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Completed   int `json:"completed"`
	Delayed     int `json:"delayed"`
	Performance int `json:"performance"`
}

type ManagerNode struct {
	Manager   Person   `json:"manager"`
	Employees []Person `json:"employees"`
	Tasks     []Task   `json:"tasks"`
	Stats     Rollup   `json:"stats"`
}
