package services

// ServiceManager exposes the certification services to the transport layer.
type ServiceManager interface {
	Sessions() *SessionManager
	Exams() *ExamService
	Certificates() *CertificateIssuer
}

type serviceManager struct {
	sessions     *SessionManager
	exams        *ExamService
	certificates *CertificateIssuer
}

func NewServiceManager(sessions *SessionManager, exams *ExamService, certificates *CertificateIssuer) ServiceManager {
	return &serviceManager{
		sessions:     sessions,
		exams:        exams,
		certificates: certificates,
	}
}

func (m *serviceManager) Sessions() *SessionManager        { return m.sessions }
func (m *serviceManager) Exams() *ExamService              { return m.exams }
func (m *serviceManager) Certificates() *CertificateIssuer { return m.certificates }
