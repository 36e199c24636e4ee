package document

// Category is one entry of the category menu. Switching to a category
// reseeds the document with a single section built from Title and Content.
type Category struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	FileName    string `json:"fileName"`
	Content     string `json:"content"`
	Placeholder string `json:"placeholder"`
}

// DefaultCategory is the category a new document starts in.
const DefaultCategory = 1

var categories = []Category{
	{
		ID:          1,
		Title:       "모양 및 구조(작용원리)",
		FileName:    "docuApp_02.docx",
		Placeholder: "(예시) 비접촉식 초음파 펄스를 이용하여 조직의 밀도를 측정하고, 내장된 AI 알고리즘이 수집된 데이터를 분석하여 진단 지표를 산출하는 원리.",
	},
	{
		ID:          2,
		Title:       "모양 및 구조(외형)",
		FileName:    "docuApp_03.docx",
		Placeholder: "(예시) 거치형 직사각형 본체와 분리 가능한 측정 프로브로 구성되며, 전면부에 LCD 대형 디스플레이가 탑재된 형태.",
	},
	{
		ID:          3,
		Title:       "모양 및 구조(치수)",
		FileName:    "docuApp_04.docx",
		Placeholder: "(예시) 본체 치수: 300×200×150mm; 프로브 무게: 100g 이하; 총 중량: 3kg 미만.",
	},
	{
		ID:          4,
		Title:       "모양 및 구조(특성)",
		FileName:    "docuApp_05.docx",
		Placeholder: "(예시) 내열성 플라스틱 소재 사용; IPX4 방수 등급 지원; 무선(Wireless) 또는 유선(Ethernet) 데이터 전송 기능.",
	},
	{
		ID:          5,
		Title:       "원재료",
		FileName:    "docuApp_06.docx",
		Placeholder: "(예시) 기기 외피: ABS 수지; 환자 접촉부: 의료용 폴리우레탄 필름; 내부 회로 기판: 산업용 PCB.",
	},
	{
		ID:          6,
		Title:       "성능",
		FileName:    "docuApp_07.docx",
		Placeholder: "(예시) 측정 정확도 ±5% 이내; 데이터 처리 시간 1초 미만; 연속 작동 시간 5시간 이상.",
	},
	{
		ID:          7,
		Title:       "사용목적",
		FileName:    "docuApp_08.docx",
		Placeholder: "(예시) 생체 신호를 측정하여 특정 질환의 예방, 진단, 또는 완화에 필요한 보조 정보를 제공할 목적으로 사용됨.",
	},
	{
		ID:          8,
		Title:       "사용방법",
		FileName:    "docuApp_09.docx",
		Placeholder: "(예시) 1. 전원 연결 및 기기 활성화. 2. 측정 프로브를 환부 근처에 위치. 3. 터치스크린의 '시작' 버튼을 눌러 측정 시작 및 결과 출력.",
	},
	{
		ID:          9,
		Title:       "사용 시 주의사항",
		FileName:    "docuApp_10.docx",
		Placeholder: "(예시) 경고: 인화성 물질 근처에서 사용 금지. 보관: 직사광선을 피해 상온에서 보관. 세척: 지정된 소독액만 사용 가능.",
	},
}

// Categories returns a copy of the category table.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func LookupCategory(id int) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryTitle returns the title of id, or "" for an unknown category.
func CategoryTitle(id int) string {
	c, _ := LookupCategory(id)
	return c.Title
}

// ExportFileName returns the Word export filename for a category.
func ExportFileName(id int) string {
	if c, ok := LookupCategory(id); ok && c.FileName != "" {
		return c.FileName
	}
	return "document.docx"
}
